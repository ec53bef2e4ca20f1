package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
	"github.com/gatekeeperhq/gatekeeper/platform/pg"
)

const (
	pgInsertDevice = `INSERT INTO
		%s.active_devices(created_at, device_id, id, last_login, updated_at, user_id)
		VALUES($1, $2, $3, $4, $5, $6)`
	pgUpdateDevice = `
		UPDATE
			%s.active_devices
		SET
			last_login = $2,
			updated_at = $3
		WHERE
			id = $1`
	pgDeleteDevice = `DELETE FROM %s.active_devices WHERE id = $1`

	pgCountDevices = `SELECT count(*) FROM %s.active_devices
		%s`
	pgListDevices = `
		SELECT
			created_at, device_id, id, last_login, updated_at, user_id
		FROM
			%s.active_devices
		%s`

	pgClauseDeviceIDs       = `device_id IN (?)`
	pgClauseIDs             = `id IN (?)`
	pgClauseLastLoginBefore = `last_login < ?`
	pgClauseUserIDs         = `user_id IN (?)`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgIndexDeviceIDUserID = `
		CREATE INDEX
			%s
		ON
			%s.active_devices (device_id, user_id)`
	pgIndexID        = `CREATE INDEX %s ON %s.active_devices (id)`
	pgIndexLastLogin = `CREATE INDEX %s ON %s.active_devices (last_login)`
	pgIndexUserID    = `CREATE INDEX %s ON %s.active_devices (user_id)`

	pgCreateSchema = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.active_devices (
		created_at TIMESTAMP NOT NULL,
		device_id TEXT NOT NULL,
		id BIGINT NOT NULL UNIQUE,
		last_login TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		user_id BIGINT NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.active_devices`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{
		db: db,
	}
}

func (s *pgService) Count(ns string, opts QueryOptions) (uint, error) {
	clauses, params, err := convertOpts(opts)
	if err != nil {
		return 0, err
	}

	count, err := s.countDevices(ns, clauses, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return 0, err
			}
		}

		count, err = s.countDevices(ns, clauses, params...)
	}

	return count, err
}

func (s *pgService) Delete(ns string, id uint64) error {
	_, err := s.db.Exec(fmt.Sprintf(pgDeleteDevice, ns), id)
	if err != nil && pg.IsRelationNotFound(pg.WrapError(err)) {
		if err := s.Setup(ns); err != nil {
			return err
		}

		_, err = s.db.Exec(fmt.Sprintf(pgDeleteDevice, ns), id)
	}

	return err
}

func (s *pgService) Put(ns string, d *Device) (*Device, error) {
	var (
		params []interface{}
		query  string
	)

	if err := d.Validate(); err != nil {
		return nil, err
	}

	if d.ID == 0 {
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}

		ts, err := time.Parse(pg.TimeFormat, d.CreatedAt.UTC().Format(pg.TimeFormat))
		if err != nil {
			return nil, err
		}

		d.CreatedAt = ts
		d.UpdatedAt = ts

		if d.LastLogin.IsZero() {
			d.LastLogin = ts
		}

		lastLogin, err := time.Parse(pg.TimeFormat, d.LastLogin.UTC().Format(pg.TimeFormat))
		if err != nil {
			return nil, err
		}

		d.LastLogin = lastLogin

		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		d.ID = id

		params = []interface{}{
			d.CreatedAt,
			d.DeviceID,
			d.ID,
			d.LastLogin,
			d.UpdatedAt,
			d.UserID,
		}
		query = fmt.Sprintf(pgInsertDevice, ns)
	} else {
		now, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
		if err != nil {
			return nil, err
		}

		lastLogin, err := time.Parse(pg.TimeFormat, d.LastLogin.UTC().Format(pg.TimeFormat))
		if err != nil {
			return nil, err
		}

		d.LastLogin = lastLogin
		d.UpdatedAt = now

		params = []interface{}{
			d.ID,
			d.LastLogin,
			d.UpdatedAt,
		}
		query = fmt.Sprintf(pgUpdateDevice, ns)
	}

	_, err := s.db.Exec(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			_, err = s.db.Exec(query, params...)
		}
	}

	return d, err
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	clauses, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	ds, err := s.listDevices(ns, clauses, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}
		}

		ds, err = s.listDevices(ns, clauses, params...)
	}

	return ds, err
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateSchema, ns),
		fmt.Sprintf(pgCreateTable, ns),
		pg.GuardIndex(ns, "device_device_id_user_id", pgIndexDeviceIDUserID),
		pg.GuardIndex(ns, "device_id", pgIndexID),
		pg.GuardIndex(ns, "device_last_login", pgIndexLastLogin),
		pg.GuardIndex(ns, "device_user_id", pgIndexUserID),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("setup (%s): %s", q, err)
		}
	}

	return nil
}

func (s *pgService) Teardown(ns string) error {
	qs := []string{
		fmt.Sprintf(pgDropTable, ns),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("teardown (%s): %s", q, err)
		}
	}

	return nil
}

func (s *pgService) countDevices(
	ns string,
	clauses []string,
	params ...interface{},
) (uint, error) {
	c := strings.Join(clauses, "\nAND ")

	if len(clauses) > 0 {
		c = fmt.Sprintf("WHERE %s", c)
	}

	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(pgCountDevices, ns, c))

	var count uint

	err := s.db.Get(&count, query, params...)
	return count, err
}

func (s *pgService) listDevices(
	ns string,
	clauses []string,
	params ...interface{},
) (List, error) {
	c := strings.Join(clauses, "\nAND ")

	if len(clauses) > 0 {
		c = fmt.Sprintf("WHERE %s", c)
	}

	query := strings.Join([]string{
		fmt.Sprintf(pgListDevices, ns, c),
		pgOrderCreatedAt,
	}, "\n")

	query = sqlx.Rebind(sqlx.DOLLAR, query)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds := List{}

	for rows.Next() {
		d := &Device{}

		err := rows.Scan(
			&d.CreatedAt,
			&d.DeviceID,
			&d.ID,
			&d.LastLogin,
			&d.UpdatedAt,
			&d.UserID,
		)
		if err != nil {
			return nil, err
		}

		d.CreatedAt = d.CreatedAt.UTC()
		d.LastLogin = d.LastLogin.UTC()
		d.UpdatedAt = d.UpdatedAt.UTC()

		ds = append(ds, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ds, nil
}

func convertOpts(opts QueryOptions) ([]string, []interface{}, error) {
	var (
		clauses = []string{}
		params  = []interface{}{}
	)

	if len(opts.DeviceIDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.DeviceIDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseDeviceIDs, ps)
		if err != nil {
			return nil, nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.IDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.IDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseIDs, ps)
		if err != nil {
			return nil, nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if !opts.LastLoginBefore.IsZero() {
		clauses = append(clauses, pgClauseLastLoginBefore)
		params = append(params, opts.LastLoginBefore.UTC().Format(pg.TimeFormat))
	}

	if len(opts.UserIDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.UserIDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseUserIDs, ps)
		if err != nil {
			return nil, nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	return clauses, params, nil
}

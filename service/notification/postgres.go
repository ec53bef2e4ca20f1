package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
	"github.com/gatekeeperhq/gatekeeper/platform/pg"
)

const (
	pgInsertNotification = `INSERT INTO
		%s.notifications(created_at, id, message, read, title, updated_at, user_id)
		VALUES($1, $2, $3, $4, $5, $6, $7)`
	pgUpdateNotification = `
		UPDATE
			%s.notifications
		SET
			read = $2,
			updated_at = $3
		WHERE
			id = $1`

	pgCountNotifications = `SELECT count(*) FROM %s.notifications
		%s`
	pgListNotifications = `
		SELECT
			created_at, id, message, read, title, updated_at, user_id
		FROM
			%s.notifications
		%s`

	pgClauseBefore  = `created_at < ?`
	pgClauseIDs     = `id IN (?)`
	pgClauseRead    = `read = ?`
	pgClauseUserIDs = `user_id IN (?)`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgIndexID         = `CREATE INDEX %s ON %s.notifications (id)`
	pgIndexUserIDRead = `
		CREATE INDEX
			%s
		ON
			%s.notifications (user_id, read)`

	pgCreateSchema = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.notifications (
		created_at TIMESTAMP NOT NULL,
		id BIGINT NOT NULL UNIQUE,
		message TEXT NOT NULL,
		read BOOL DEFAULT FALSE NOT NULL,
		title TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		user_id BIGINT NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.notifications`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{db: db}
}

func (s *pgService) Count(ns string, opts QueryOptions) (uint, error) {
	clauses, params, err := convertOpts(opts)
	if err != nil {
		return 0, err
	}

	count, err := s.countNotifications(ns, clauses, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return 0, err
			}
		}

		count, err = s.countNotifications(ns, clauses, params...)
	}

	return count, err
}

func (s *pgService) Put(ns string, n *Notification) (*Notification, error) {
	var (
		params []interface{}
		query  string
	)

	if err := n.Validate(); err != nil {
		return nil, err
	}

	if n.ID == 0 {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}

		ts, err := time.Parse(
			pg.TimeFormat,
			n.CreatedAt.UTC().Format(pg.TimeFormat),
		)
		if err != nil {
			return nil, err
		}

		n.CreatedAt = ts
		n.UpdatedAt = ts

		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		n.ID = id

		params = []interface{}{
			n.CreatedAt,
			n.ID,
			n.Message,
			n.Read,
			n.Title,
			n.UpdatedAt,
			n.UserID,
		}
		query = fmt.Sprintf(pgInsertNotification, ns)
	} else {
		now, err := time.Parse(
			pg.TimeFormat,
			time.Now().UTC().Format(pg.TimeFormat),
		)
		if err != nil {
			return nil, err
		}

		n.UpdatedAt = now

		params = []interface{}{
			n.ID,
			n.Read,
			n.UpdatedAt,
		}
		query = fmt.Sprintf(pgUpdateNotification, ns)
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

	return n, err
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	clauses, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	list, err := s.listNotifications(ns, opts.Limit, clauses, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}
		}

		list, err = s.listNotifications(ns, opts.Limit, clauses, params...)
	}

	return list, err
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateSchema, ns),
		fmt.Sprintf(pgCreateTable, ns),
		pg.GuardIndex(ns, "notification_id", pgIndexID),
		pg.GuardIndex(ns, "notification_user_id_read", pgIndexUserIDRead),
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

func (s *pgService) countNotifications(
	ns string,
	clauses []string,
	params ...interface{},
) (uint, error) {
	c := strings.Join(clauses, "\nAND ")

	if len(clauses) > 0 {
		c = fmt.Sprintf("WHERE %s", c)
	}

	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(pgCountNotifications, ns, c))

	var count uint

	err := s.db.Get(&count, query, params...)
	return count, err
}

func (s *pgService) listNotifications(
	ns string,
	limit int,
	clauses []string,
	params ...interface{},
) (List, error) {
	c := strings.Join(clauses, "\nAND ")

	if len(clauses) > 0 {
		c = fmt.Sprintf("WHERE %s", c)
	}

	qs := []string{
		fmt.Sprintf(pgListNotifications, ns, c),
		pgOrderCreatedAt,
	}

	if limit > 0 {
		qs = append(qs, fmt.Sprintf("LIMIT %d", limit))
	}

	query := sqlx.Rebind(sqlx.DOLLAR, strings.Join(qs, "\n"))

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := List{}

	for rows.Next() {
		n := &Notification{}

		err := rows.Scan(
			&n.CreatedAt,
			&n.ID,
			&n.Message,
			&n.Read,
			&n.Title,
			&n.UpdatedAt,
			&n.UserID,
		)
		if err != nil {
			return nil, err
		}

		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()

		list = append(list, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func convertOpts(opts QueryOptions) ([]string, []interface{}, error) {
	var (
		clauses = []string{}
		params  = []interface{}{}
	)

	if !opts.Before.IsZero() {
		clauses = append(clauses, pgClauseBefore)
		params = append(params, opts.Before.UTC().Format(pg.TimeFormat))
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

	if opts.Read != nil {
		clauses = append(clauses, pgClauseRead)
		params = append(params, *opts.Read)
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

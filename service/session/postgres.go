package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gatekeeperhq/gatekeeper/platform/pg"
)

const (
	pgInsertSession = `INSERT INTO
		%s.sessions(created_at, device_id, enabled, session_id, user_id)
		VALUES($1, $2, $3, $4, $5)`
	pgUpdateSession = `
		UPDATE
			%s.sessions
		SET
			enabled = $3
		WHERE
			session_id = $1 AND
			user_id = $2`

	pgClauseDeviceIDs = `device_id IN (?)`
	pgClauseEnabled   = `enabled = ?`
	pgClauseIDs       = `session_id IN (?)`
	pgClauseUserIDs   = `user_id IN (?)`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgListSessions = `
		SELECT
			created_at, device_id, enabled, session_id, user_id
		FROM
			%s.sessions
		%s`

	pgCreateSchema = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.sessions (
		created_at TIMESTAMP DEFAULT now() NOT NULL,
		device_id VARCHAR(255) NOT NULL,
		enabled BOOL DEFAULT TRUE NOT NULL,
		session_id VARCHAR(40) NOT NULL,
		user_id BIGINT NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.sessions`

	pgIndexDeviceIDUserID = `
		CREATE INDEX
			%s
		ON
			%s.sessions (device_id, user_id)
		WHERE
			enabled = true`
	pgIndexID = `
		CREATE INDEX
			%s
		ON
			%s.sessions (session_id)
		WHERE
			enabled = true`
	pgIndexUserID = `
		CREATE INDEX
			%s
		ON
			%s.sessions (user_id)
		WHERE
			enabled = true`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{db: db}
}

func (s *pgService) Put(ns string, session *Session) (*Session, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	var (
		params = []interface{}{
			session.ID,
			session.UserID,
			session.Enabled,
		}
		query = fmt.Sprintf(pgUpdateSession, ns)
	)

	if session.CreatedAt.IsZero() {
		ts, err := time.Parse(
			pg.TimeFormat,
			time.Now().UTC().Format(pg.TimeFormat),
		)
		if err != nil {
			return nil, err
		}

		session.CreatedAt = ts
	}

	session.CreatedAt = session.CreatedAt.UTC()

	if session.ID == "" {
		session.ID = generateID()

		params = []interface{}{
			session.CreatedAt,
			session.DeviceID,
			session.Enabled,
			session.ID,
			session.UserID,
		}
		query = fmt.Sprintf(pgInsertSession, ns)
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

	return session, err
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	clauses, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	ss, err := s.listSessions(ns, clauses, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}
		}

		ss, err = s.listSessions(ns, clauses, params...)
	}

	return ss, err
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateSchema, ns),
		fmt.Sprintf(pgCreateTable, ns),
		pg.GuardIndex(ns, "session_device_id_user_id", pgIndexDeviceIDUserID),
		pg.GuardIndex(ns, "session_id", pgIndexID),
		pg.GuardIndex(ns, "session_user_id", pgIndexUserID),
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

func (s *pgService) listSessions(
	ns string,
	clauses []string,
	params ...interface{},
) (List, error) {
	c := strings.Join(clauses, "\nAND ")

	if len(clauses) > 0 {
		c = fmt.Sprintf("WHERE %s", c)
	}

	query := strings.Join([]string{
		fmt.Sprintf(pgListSessions, ns, c),
		pgOrderCreatedAt,
	}, "\n")

	query = sqlx.Rebind(sqlx.DOLLAR, query)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ss := List{}

	for rows.Next() {
		session := &Session{}

		err := rows.Scan(
			&session.CreatedAt,
			&session.DeviceID,
			&session.Enabled,
			&session.ID,
			&session.UserID,
		)
		if err != nil {
			return nil, err
		}

		session.CreatedAt = session.CreatedAt.UTC()

		ss = append(ss, session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ss, nil
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

	if opts.Enabled != nil {
		clauses = append(clauses, pgClauseEnabled)
		params = append(params, *opts.Enabled)
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

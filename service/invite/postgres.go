package invite

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gatekeeperhq/gatekeeper/platform/flake"
	"github.com/gatekeeperhq/gatekeeper/platform/pg"
)

const entity = "invite"

const (
	pgInsertInvite = `INSERT INTO
		%s.%s(address, created_at, created_by, end_at, entry_at, estate_id, exit_at, group_name, id, members, otp, resident_name, revision, start_at, status, updated_at, visitor_name, visitor_phone)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	pgUpdateInvite = `
		UPDATE
			%s.%s
		SET
			entry_at = $3,
			exit_at = $4,
			members = $5,
			revision = revision + 1,
			status = $6,
			updated_at = $7
		WHERE
			id = $1
			AND revision = $2`
	pgDeleteInvite = `DELETE FROM %s.%s WHERE id = $1`

	pgListInvites = `
		SELECT
			address, created_at, created_by, end_at, entry_at, estate_id, exit_at, group_name, id, members, otp, resident_name, revision, start_at, status, updated_at, visitor_name, visitor_phone
		FROM
			%s.%s
		%s`

	pgClauseAddresses  = `address IN (?)`
	pgClauseCreatedBys = `created_by IN (?)`
	pgClauseEndBefore  = `end_at < ?`
	pgClauseIDs        = `id IN (?)`
	pgClauseOTPs       = `otp IN (?)`
	pgClauseStatuses   = `status IN (?)`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgCreateSchema = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.%s (
		address TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		created_by BIGINT NOT NULL,
		end_at TIMESTAMP NOT NULL,
		entry_at TIMESTAMP,
		estate_id TEXT NOT NULL,
		exit_at TIMESTAMP,
		group_name TEXT NOT NULL DEFAULT '',
		id BIGINT NOT NULL UNIQUE,
		members INT NOT NULL DEFAULT 0,
		otp TEXT NOT NULL,
		resident_name TEXT NOT NULL,
		revision BIGINT NOT NULL,
		start_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		visitor_name TEXT NOT NULL DEFAULT '',
		visitor_phone TEXT NOT NULL DEFAULT ''
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.%s`
)

var pgTables = map[Kind]string{
	KindGroup:     "group_invites",
	KindOneTime:   "one_time_invites",
	KindRecurring: "recurring_invites",
}

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{
		db: db,
	}
}

func (s *pgService) Delete(ns string, kind Kind, id uint64) error {
	table, ok := pgTables[kind]
	if !ok {
		return wrapError(ErrInvalidInvite, "Kind '%d' not supported", kind)
	}

	_, err := s.db.Exec(fmt.Sprintf(pgDeleteInvite, ns, table), id)
	if err != nil && pg.IsRelationNotFound(pg.WrapError(err)) {
		if err := s.Setup(ns); err != nil {
			return err
		}

		_, err = s.db.Exec(fmt.Sprintf(pgDeleteInvite, ns, table), id)
	}

	return err
}

func (s *pgService) Put(ns string, i *Invite) (*Invite, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	if i.ID == 0 {
		return s.insert(ns, i)
	}

	return s.update(ns, i)
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = Kinds
	}

	is := List{}

	for _, kind := range kinds {
		table, ok := pgTables[kind]
		if !ok {
			return nil, wrapError(ErrInvalidInvite, "Kind '%d' not supported", kind)
		}

		ks, err := s.listInvites(ns, table, kind, where, params...)
		if err != nil {
			return nil, err
		}

		is = append(is, ks...)
	}

	sort.Sort(is)

	if opts.Limit > 0 && uint(len(is)) > opts.Limit {
		is = is[:opts.Limit]
	}

	return is, nil
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateSchema, ns),
	}

	for _, table := range pgTables {
		qs = append(qs,
			fmt.Sprintf(pgCreateTable, ns, table),
			guardTableIndex(ns, table, "created_by"),
			guardTableIndex(ns, table, "id"),
			guardTableIndex(ns, table, "otp"),
		)
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
	qs := []string{}

	for _, table := range pgTables {
		qs = append(qs, fmt.Sprintf(pgDropTable, ns, table))
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("teardown (%s): %s", q, err)
		}
	}

	return nil
}

func (s *pgService) insert(ns string, i *Invite) (*Invite, error) {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	ts, err := time.Parse(pg.TimeFormat, i.CreatedAt.UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	i.CreatedAt = ts
	i.UpdatedAt = ts
	i.Revision = 1

	if err := normalizeTimes(i); err != nil {
		return nil, err
	}

	id, err := flake.NextID(flake.Namespace(ns, entity))
	if err != nil {
		return nil, err
	}

	i.ID = id

	var (
		params = []interface{}{
			i.Address,
			i.CreatedAt,
			i.CreatedBy,
			i.EndAt.UTC(),
			nullTime(i.EntryAt),
			i.EstateID,
			nullTime(i.ExitAt),
			i.GroupName,
			i.ID,
			i.MembersCheckedIn,
			i.OTP,
			i.ResidentName,
			i.Revision,
			i.StartAt.UTC(),
			i.Status,
			i.UpdatedAt,
			i.VisitorName,
			i.VisitorPhone,
		}
		query = fmt.Sprintf(pgInsertInvite, ns, pgTables[i.Kind])
	)

	_, err = s.db.Exec(query, params...)
	if err != nil && pg.IsRelationNotFound(pg.WrapError(err)) {
		if err := s.Setup(ns); err != nil {
			return nil, err
		}

		_, err = s.db.Exec(query, params...)
	}

	return i, err
}

func (s *pgService) listInvites(
	ns, table string,
	kind Kind,
	where string,
	params ...interface{},
) (List, error) {
	query := fmt.Sprintf(pgListInvites, ns, table, where)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			return s.listInvites(ns, table, kind, where, params...)
		}

		return nil, err
	}
	defer rows.Close()

	is := List{}

	for rows.Next() {
		var (
			invite = &Invite{
				Kind: kind,
			}

			entryAt pq.NullTime
			exitAt  pq.NullTime
		)

		err := rows.Scan(
			&invite.Address,
			&invite.CreatedAt,
			&invite.CreatedBy,
			&invite.EndAt,
			&entryAt,
			&invite.EstateID,
			&exitAt,
			&invite.GroupName,
			&invite.ID,
			&invite.MembersCheckedIn,
			&invite.OTP,
			&invite.ResidentName,
			&invite.Revision,
			&invite.StartAt,
			&invite.Status,
			&invite.UpdatedAt,
			&invite.VisitorName,
			&invite.VisitorPhone,
		)
		if err != nil {
			return nil, err
		}

		invite.CreatedAt = invite.CreatedAt.UTC()
		invite.EndAt = invite.EndAt.UTC()
		invite.StartAt = invite.StartAt.UTC()
		invite.UpdatedAt = invite.UpdatedAt.UTC()

		if entryAt.Valid {
			invite.EntryAt = entryAt.Time.UTC()
		}

		if exitAt.Valid {
			invite.ExitAt = exitAt.Time.UTC()
		}

		is = append(is, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return is, nil
}

func (s *pgService) update(ns string, i *Invite) (*Invite, error) {
	now, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	if err := normalizeTimes(i); err != nil {
		return nil, err
	}

	var (
		params = []interface{}{
			i.ID,
			i.Revision,
			nullTime(i.EntryAt),
			nullTime(i.ExitAt),
			i.MembersCheckedIn,
			i.Status,
			now,
		}
		query = fmt.Sprintf(pgUpdateInvite, ns, pgTables[i.Kind])
	)

	res, err := s.db.Exec(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			res, err = s.db.Exec(query, params...)
		}

		if err != nil {
			return nil, err
		}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	// The conditional write missed, either the row is gone or another
	// transition won the race.
	if affected == 0 {
		return nil, wrapError(ErrConcurrentUpdate, "invite %d revision %d", i.ID, i.Revision)
	}

	i.Revision++
	i.UpdatedAt = now

	return i, nil
}

func convertOpts(opts QueryOptions) (string, []interface{}, error) {
	var (
		clauses = []string{}
		params  = []interface{}{}
	)

	if len(opts.Addresses) > 0 {
		ps := []interface{}{}

		for _, a := range opts.Addresses {
			ps = append(ps, a)
		}

		clause, _, err := sqlx.In(pgClauseAddresses, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.CreatedBys) > 0 {
		ps := []interface{}{}

		for _, id := range opts.CreatedBys {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseCreatedBys, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if !opts.EndBefore.IsZero() {
		clauses = append(clauses, pgClauseEndBefore)
		params = append(params, opts.EndBefore.UTC().Format(pg.TimeFormat))
	}

	if len(opts.IDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.IDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseIDs, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.OTPs) > 0 {
		ps := []interface{}{}

		for _, otp := range opts.OTPs {
			ps = append(ps, otp)
		}

		clause, _, err := sqlx.In(pgClauseOTPs, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.Statuses) > 0 {
		ps := []interface{}{}

		for _, st := range opts.Statuses {
			ps = append(ps, string(st))
		}

		clause, _, err := sqlx.In(pgClauseStatuses, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	where := ""

	if len(clauses) > 0 {
		where = sqlx.Rebind(sqlx.DOLLAR, pg.ClausesToWhere(clauses...))
	}

	where = fmt.Sprintf("%s\n%s", where, pgOrderCreatedAt)

	return where, params, nil
}

func guardTableIndex(ns, table, column string) string {
	var (
		index = fmt.Sprintf("%s_%s", table, column)
		query = fmt.Sprintf(`CREATE INDEX %%s ON %%s.%s (%s)`, table, column)
	)

	return pg.GuardIndex(ns, index, query)
}

// normalizeTimes rounds all window and gate timestamps to the precision the
// store preserves, so values read back compare equal to values written.
func normalizeTimes(i *Invite) error {
	for _, t := range []*time.Time{&i.StartAt, &i.EndAt, &i.EntryAt, &i.ExitAt} {
		if t.IsZero() {
			continue
		}

		ts, err := time.Parse(pg.TimeFormat, t.UTC().Format(pg.TimeFormat))
		if err != nil {
			return err
		}

		*t = ts
	}

	return nil
}

func nullTime(t time.Time) pq.NullTime {
	return pq.NullTime{
		Time:  t.UTC(),
		Valid: !t.IsZero(),
	}
}

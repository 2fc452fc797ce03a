package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const userColumns = `id, user_friendly_id, email, first_name, last_name, role, status, district_id, school_id, created_at, updated_at`

var sortColumns = map[users.SortField]string{
	users.SortFirstName:      "lower(first_name)",
	users.SortLastName:       "lower(last_name)",
	users.SortEmail:          "lower(email)",
	users.SortUserFriendlyID: "user_friendly_id",
	users.SortCreatedAt:      "created_at",
	users.SortStatus:         "status",
}

// UserStore implements users.Store on PostgreSQL. Writes and point reads go
// to the primary; listings and statistics may be served by a replica.
// Inside a unit of work everything uses the transaction.
type UserStore struct {
	primary *sql.DB
	replica func() *sql.DB
}

var _ users.Store = (*UserStore)(nil)

// NewUserStore creates a store on the connection manager
func NewUserStore(cm *ConnectionManager) *UserStore {
	return &UserStore{primary: cm.Primary(), replica: cm.Replica}
}

// NewUserStoreWithDB creates a store on a single database handle
func NewUserStoreWithDB(db *sql.DB) *UserStore {
	return &UserStore{primary: db, replica: func() *sql.DB { return db }}
}

func (s *UserStore) writer(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return s.primary
}

func (s *UserStore) reader(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return s.replica()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, extra ...interface{}) (*users.User, error) {
	var (
		u      users.User
		role   string
		status string
	)
	dest := append([]interface{}{
		&u.ID, &u.UserFriendlyID, &u.Email, &u.Name.First, &u.Name.Last,
		&role, &status, &u.DistrictID, &u.SchoolID, &u.CreatedAt, &u.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = rbac.Role(role)
	u.Status = auth.AccountStatus(status)
	return &u, nil
}

// translate maps driver errors onto the users sentinels
func translate(err error, conflict error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return users.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", conflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", users.ErrDistrictNotFound, pqErr.Constraint)
		}
	}
	return err
}

func (s *UserStore) Create(ctx context.Context, u *users.User) error {
	err := s.writer(ctx).QueryRowContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role, status, district_id, school_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING user_friendly_id`,
		u.ID, u.Email, u.Name.First, u.Name.Last, string(u.Role), string(u.Status),
		u.DistrictID, u.SchoolID, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.UserFriendlyID)
	if err != nil {
		return translate(err, users.ErrEmailTaken)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (*users.User, error) {
	row := s.writer(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, users.ErrEmailTaken)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	row := s.writer(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, users.ErrEmailTaken)
	}
	return u, nil
}

func (s *UserStore) Update(ctx context.Context, u *users.User) error {
	result, err := s.writer(ctx).ExecContext(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, role = $5, status = $6,
		    district_id = $7, school_id = $8, updated_at = $9
		WHERE id = $1`,
		u.ID, u.Email, u.Name.First, u.Name.Last, string(u.Role), string(u.Status),
		u.DistrictID, u.SchoolID, u.UpdatedAt,
	)
	if err != nil {
		return translate(err, users.ErrEmailTaken)
	}
	return requireAffected(result)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.writer(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

// buildListQuery renders the filtered, ordered and paged select
func buildListQuery(filter users.Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DistrictID != "" {
		where = append(where, "district_id = "+arg(filter.DistrictID))
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			roles[i] = string(r)
		}
		where = append(where, "role = ANY("+arg(pq.Array(roles))+")")
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + userColumns + `, COUNT(*) OVER() FROM users`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	column, ok := sortColumns[filter.Sort.Field]
	if !ok {
		column = sortColumns[users.SortUserFriendlyID]
	}
	direction := "ASC"
	if filter.Sort.Desc {
		direction = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, user_friendly_id ASC", column, direction)
	fmt.Fprintf(&b, " LIMIT %s OFFSET %s", arg(filter.Limit), arg(filter.Offset()))
	return b.String(), args
}

func (s *UserStore) List(ctx context.Context, filter users.Filter) ([]*users.User, int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, 0, err
	}

	query, args := buildListQuery(filter)
	db := s.reader(ctx)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var (
		list  = make([]*users.User, 0, filter.Limit)
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	// A page past the end carries no window count
	if len(list) == 0 && filter.Offset() > 0 {
		countFilter := filter
		countFilter.Page, countFilter.Limit = 1, 1
		countQuery, countArgs := buildListQuery(countFilter)
		row := db.QueryRowContext(ctx, countQuery, countArgs...)
		if _, err := scanUser(row, &total); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("count users: %w", err)
		}
	}
	return list, total, nil
}

func (s *UserStore) CreateDistrict(ctx context.Context, d *users.District) error {
	_, err := s.writer(ctx).ExecContext(ctx,
		`INSERT INTO districts (id, name, created_at) VALUES ($1, $2, $3)`,
		d.ID, d.Name, d.CreatedAt,
	)
	if err != nil {
		return translate(err, users.ErrDistrictExists)
	}
	return nil
}

func (s *UserStore) DistrictExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.writer(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM districts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("district exists: %w", err)
	}
	return exists, nil
}

func (s *UserStore) ListDistricts(ctx context.Context) ([]*users.District, error) {
	rows, err := s.reader(ctx).QueryContext(ctx, `SELECT id, name, created_at FROM districts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	defer rows.Close()

	var out []*users.District
	for rows.Next() {
		var d users.District
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan district: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *UserStore) CountByRole(ctx context.Context) ([]users.RoleCount, error) {
	rows, err := s.reader(ctx).QueryContext(ctx, `SELECT role, status, COUNT(*) FROM users GROUP BY role, status ORDER BY role, status`)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	var out []users.RoleCount
	for rows.Next() {
		var (
			rc           users.RoleCount
			role, status string
		)
		if err := rows.Scan(&role, &status, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		rc.Role = rbac.Role(role)
		rc.Status = auth.AccountStatus(status)
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Package sqlxrepos implements the domain repositories against postgres
// with hand-written SQL.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core/account"
)

type AccountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*AccountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type accountRow struct {
	ID           string         `db:"id"`
	Name         sql.NullString `db:"name"`
	Username     sql.NullString `db:"username"`
	Email        sql.NullString `db:"email"`
	IsActive     sql.NullBool   `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	StageID      sql.NullString `db:"stage_id"`
	Unlimited    bool           `db:"unlimited"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    sql.NullTime   `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (r accountRow) toAccount() account.Account {
	acct := account.Account{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username.String,
		Email:        r.Email.String,
		Roles:        r.Roles,
		StageID:      r.StageID.String,
		Unlimited:    r.Unlimited,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
	if r.IsActive.Valid {
		acct.IsActive = &r.IsActive.Bool
	}
	return acct
}

func nullStr(s string) sql.NullString  { return sql.NullString{String: s, Valid: s != ""} }
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

const accountCols = `id, name, username, email, is_active, roles, stage_id, unlimited, password_hash, created_at, updated_at, last_login`

func (repo *AccountRepository) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO account (`+accountCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		acct.ID, nullStr(acct.Name), nullStr(acct.Username), nullStr(acct.Email),
		sql.NullBool{Bool: acct.IsActivated(), Valid: acct.IsActive != nil},
		pq.StringArray(acct.Roles), nullStr(acct.StageID), acct.Unlimited, acct.PasswordHash,
		nullTime(acct.CreatedAt), nullTime(acct.UpdatedAt), nullTime(acct.LastLogin))
	if err != nil {
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acct, nil
}

func (repo *AccountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var (
		query string
		arg   interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return account.Account{}, account.ErrNotFound
		}
		query, arg = `SELECT `+accountCols+` FROM account WHERE id = $1`, filter.ID
	case filter.Username != "":
		query, arg = `SELECT `+accountCols+` FROM account WHERE username = $1`, filter.Username
	case filter.Email != "":
		query, arg = `SELECT `+accountCols+` FROM account WHERE email = $1`, filter.Email
	case filter.UsernameOrEmail != "":
		query, arg = `SELECT `+accountCols+` FROM account WHERE username = $1 OR email = $1`, filter.UsernameOrEmail
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	if err := repo.db.GetContext(ctx, &row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "finding account")
	}
	return row.toAccount(), nil
}

func (repo *AccountRepository) FilterExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// non-uuid ids can never match and would error the cast
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	var found []string
	err := repo.db.SelectContext(ctx, &found,
		`SELECT id FROM account WHERE id = ANY($1)`, pq.Array(valid))
	if err != nil {
		return nil, errors.Wrap(err, "filtering account ids")
	}

	exists := make(map[string]struct{}, len(found))
	for _, id := range found {
		exists[id] = struct{}{}
	}
	ordered := make([]string, 0, len(found))
	for _, id := range ids {
		if _, ok := exists[id]; ok {
			ordered = append(ordered, id)
		}
	}
	return ordered, nil
}

func (repo *AccountRepository) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE account
		 SET name = $2, username = $3, email = $4, is_active = $5, roles = $6,
		     stage_id = $7, unlimited = $8, password_hash = $9, updated_at = $10, last_login = $11
		 WHERE id = $1`,
		acct.ID, nullStr(acct.Name), nullStr(acct.Username), nullStr(acct.Email),
		sql.NullBool{Bool: acct.IsActivated(), Valid: acct.IsActive != nil},
		pq.StringArray(acct.Roles), nullStr(acct.StageID), acct.Unlimited, acct.PasswordHash,
		nullTime(acct.UpdatedAt), nullTime(acct.LastLogin))
	if err != nil {
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acct, nil
}

func (repo *AccountRepository) UpdateOrCreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		return repo.CreateAccount(ctx, acct)
	}
	return repo.UpdateAccount(ctx, acct)
}

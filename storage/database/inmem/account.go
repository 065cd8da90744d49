package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/somalabs/darasa/core/account"
)

type accountRepository struct {
	db *accountTable
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	repo.db.table[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if acct, ok := repo.db.table[filter.ID]; ok {
			return *acct, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	for _, acct := range repo.db.table {
		switch {
		case filter.Username != "" && acct.Username == filter.Username:
			return *acct, nil
		case filter.Email != "" && acct.Email == filter.Email:
			return *acct, nil
		case filter.UsernameOrEmail != "" &&
			(acct.Username == filter.UsernameOrEmail || acct.Email == filter.UsernameOrEmail):
			return *acct, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) FilterExistingIDs(_ context.Context, ids []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[acct.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	repo.db.table[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) UpdateOrCreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		return repo.CreateAccount(ctx, acct)
	}
	return repo.UpdateAccount(ctx, acct)
}

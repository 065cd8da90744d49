package account

import (
	"context"

	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
)

var ErrNotFound = errors.New("account not found")

type (
	Repository interface {
		CreateAccount(ctx context.Context, acct Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// FilterExistingIDs returns the subset of ids present in the directory,
		// preserving input order.
		FilterExistingIDs(ctx context.Context, ids []string) ([]string, error)
		UpdateAccount(ctx context.Context, acct Account) (Account, error)
		UpdateOrCreateAccount(ctx context.Context, acct Account) (Account, error)
	}

	// ServiceInterface is the account directory contract the other services
	// consume. Meetings and devices only ever resolve identities through it.
	ServiceInterface interface {
		Create(ctx context.Context, na NewAccount) (Account, error)
		GetByID(ctx context.Context, id string) (Account, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (Account, error)
		Exists(ctx context.Context, id string) (bool, error)
		// PartitionIDs splits ids into (known, unknown) against the directory.
		PartitionIDs(ctx context.Context, ids []string) (known, unknown []string, err error)
		SetLastLogin(ctx context.Context, acct Account) (Account, error)
	}

	Service struct {
		repo Repository
		now  core.NowFunc
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: core.UTCNow}
}

func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	na.Clean()
	now := svc.now()
	acct := Account{
		Name:      na.Name,
		Username:  na.Username,
		Email:     na.Email,
		Roles:     na.Roles,
		StageID:   na.StageID,
		Unlimited: na.Unlimited,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct.SetActive(true)
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateAccount(ctx, acct)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := svc.GetByID(ctx, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *Service) PartitionIDs(ctx context.Context, ids []string) ([]string, []string, error) {
	existing, err := svc.repo.FilterExistingIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "filtering account IDs")
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}
	var unknown []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return existing, unknown, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, acct Account) (Account, error) {
	acct.LastLogin = svc.now()
	acct.UpdatedAt = acct.LastLogin
	return svc.repo.UpdateAccount(ctx, acct)
}

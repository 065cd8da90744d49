package device

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
)

var (
	// errors
	ErrNotFound = errors.New("device not found")
	// ErrNotAuthorized means no active registration matches the fingerprint;
	// the caller is expected to attempt registration next.
	ErrNotAuthorized = errors.New("device not authorized")
	// ErrLimitExceeded is the distinguished DEVICE_LIMIT_EXCEEDED condition.
	// It is enforced in both strict and permissive mode; clients branch on it.
	ErrLimitExceeded = errors.New("device limit exceeded")
	ErrLimitBounds   = fmt.Errorf("device limit must be between %d and %d", MinLimit, MaxLimit)
)

// Deactivation reasons recorded on reset/remove.
const (
	ReasonAdminReset   = "admin reset"
	ReasonAdminRemoved = "removed by admin"
	ReasonLimitLowered = "global device limit lowered"
)

type (
	Repository interface {
		CreateDevice(ctx context.Context, dev Device) (Device, error)
		GetDevice(ctx context.Context, id string) (Device, error)
		// GetActiveByFingerprint returns ErrNotFound when no active
		// registration matches.
		GetActiveByFingerprint(ctx context.Context, accountID, fingerprint string) (Device, error)
		QueryAccountDevices(ctx context.Context, accountID string) ([]Device, error)
		CountActiveDevices(ctx context.Context, accountID string) (int, error)
		UpdateDevice(ctx context.Context, dev Device) (Device, error)
		// DeactivateAccountDevices bulk-deactivates the account's active
		// registrations, keeping the rows. Returns how many were flipped.
		DeactivateAccountDevices(ctx context.Context, accountID, reason string) (int, error)
		QueryAllDevices(ctx context.Context) ([]Device, error)
		// AccountAggregates rolls up device counts per account.
		AccountAggregates(ctx context.Context) ([]AccountAggregate, error)
	}

	// SettingsRepository persists the process-wide device limit.
	SettingsRepository interface {
		GetDeviceLimit(ctx context.Context) (int, error)
		SetDeviceLimit(ctx context.Context, limit int) error
	}

	// LimitConfig is the explicitly injected global limit: loaded from
	// persisted configuration at startup, read on every admission check and
	// updated only through Set (last-writer-wins, per the store).
	LimitConfig struct {
		mu    sync.RWMutex
		value int
		store SettingsRepository
	}

	ServiceInterface interface {
		CheckAuthorization(ctx context.Context, acct account.Account, reg Registration) (Device, error)
		Register(ctx context.Context, acct account.Account, reg Registration) (Device, bool, error)
		Admit(ctx context.Context, acct account.Account, reg Registration) (Admission, error)
		AccountDevices(ctx context.Context, accountID string) ([]Device, error)
		ResetAccountDevices(ctx context.Context, accountID string) (int, error)
		RemoveDevice(ctx context.Context, deviceID string) error
		Limit() int
		UpdateGlobalLimit(ctx context.Context, newLimit int) (LimitUpdate, error)
		Stats(ctx context.Context) (Stats, error)
		ListAccounts(ctx context.Context, filter *QueryFilter, page core.Pagination) ([]AccountSummary, core.PageMeta, error)
	}

	Service struct {
		repo      Repository
		limit     *LimitConfig
		directory account.ServiceInterface
		mailSvc   core.EmailService
		logger    core.Logger
		conf      *core.Config
		now       core.NowFunc
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewLimitConfig(ctx context.Context, store SettingsRepository, fallback int) (*LimitConfig, error) {
	val, err := store.GetDeviceLimit(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading device limit")
	}
	if val < MinLimit || val > MaxLimit {
		val = fallback
	}
	return &LimitConfig{value: val, store: store}, nil
}

func (lc *LimitConfig) Get() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.value
}

func (lc *LimitConfig) Set(ctx context.Context, limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return core.NewValidationError(ErrLimitBounds, core.FieldError{Field: "new_limit", Error: ErrLimitBounds.Error()})
	}
	if err := lc.store.SetDeviceLimit(ctx, limit); err != nil {
		return errors.Wrap(err, "persisting device limit")
	}
	lc.mu.Lock()
	lc.value = limit
	lc.mu.Unlock()
	return nil
}

func NewService(
	repo Repository,
	limit *LimitConfig,
	directory account.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
	now core.NowFunc,
) *Service {
	if now == nil {
		now = core.UTCNow
	}
	return &Service{
		repo:      repo,
		limit:     limit,
		directory: directory,
		mailSvc:   mailSvc,
		logger:    logger,
		conf:      conf,
		now:       now,
	}
}

// CheckAuthorization succeeds when an active registration matches the
// fingerprint for the account.
func (svc *Service) CheckAuthorization(ctx context.Context, acct account.Account, reg Registration) (Device, error) {
	dev, err := svc.repo.GetActiveByFingerprint(ctx, acct.ID, reg.Fingerprint(acct.ID))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Device{}, ErrNotAuthorized
		}
		return Device{}, errors.Wrap(err, "finding device by fingerprint")
	}
	return dev, nil
}

// Register admits the originating device: idempotent re-registration for a
// known fingerprint, unconditional for unlimited-tier accounts, capped by the
// global limit otherwise. The bool reports whether a new registration was
// created.
func (svc *Service) Register(ctx context.Context, acct account.Account, reg Registration) (Device, bool, error) {
	fingerprint := reg.Fingerprint(acct.ID)
	now := svc.now()

	dev, err := svc.repo.GetActiveByFingerprint(ctx, acct.ID, fingerprint)
	if err == nil {
		dev.LastActivity = now
		dev.LoginCount++
		if reg.IP != "" {
			dev.IP = reg.IP
		}
		dev, err = svc.repo.UpdateDevice(ctx, dev)
		return dev, false, errors.Wrap(err, "refreshing device registration")
	}
	if errors.Cause(err) != ErrNotFound {
		return Device{}, false, errors.Wrap(err, "finding device by fingerprint")
	}

	if !acct.Unlimited {
		count, err := svc.repo.CountActiveDevices(ctx, acct.ID)
		if err != nil {
			return Device{}, false, errors.Wrap(err, "counting active devices")
		}
		if count >= svc.limit.Get() {
			return Device{}, false, ErrLimitExceeded
		}
	}

	browser, osName := reg.BrowserOS()
	dev = Device{
		ID:               uuid.New().String(),
		AccountID:        acct.ID,
		Fingerprint:      fingerprint,
		Name:             reg.DeviceName(),
		Platform:         reg.Platform,
		Browser:          browser,
		OS:               osName,
		ScreenResolution: reg.ScreenResolution,
		Timezone:         reg.Timezone,
		UserAgent:        reg.UserAgent,
		IP:               reg.IP,
		FirstSeen:        now,
		LastActivity:     now,
		LoginCount:       1,
		IsActive:         true,
	}
	dev, err = svc.repo.CreateDevice(ctx, dev)
	if err != nil {
		return Device{}, false, errors.Wrap(err, "creating device registration")
	}

	svc.sendNewDeviceMail(acct, dev)
	return dev, true, nil
}

// Admit wraps Register with the admission policy. The limit condition is
// always enforced; unexpected failures hard-fail in strict mode and degrade
// to allowing access (logged) otherwise.
func (svc *Service) Admit(ctx context.Context, acct account.Account, reg Registration) (Admission, error) {
	dev, created, err := svc.Register(ctx, acct, reg)
	if err == nil {
		return Admission{Authorized: true, Created: created, Device: &dev}, nil
	}
	if errors.Cause(err) == ErrLimitExceeded {
		return Admission{LimitExceeded: true}, ErrLimitExceeded
	}
	if svc.conf.Admission.Strict {
		return Admission{}, err
	}
	svc.logger.Error("device admission degraded to allow", err, acct)
	return Admission{Authorized: true, Degraded: true}, nil
}

func (svc *Service) AccountDevices(ctx context.Context, accountID string) ([]Device, error) {
	if _, err := svc.directory.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAccountDevices(ctx, accountID)
}

// ResetAccountDevices deactivates all the account's active registrations.
// Resetting an already-reset account is a no-op success.
func (svc *Service) ResetAccountDevices(ctx context.Context, accountID string) (int, error) {
	acct, err := svc.directory.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	count, err := svc.repo.DeactivateAccountDevices(ctx, accountID, ReasonAdminReset)
	if err != nil {
		return 0, errors.Wrap(err, "resetting account devices")
	}
	if count > 0 {
		svc.sendResetMail(acct, count)
	}
	return count, nil
}

// RemoveDevice deactivates a single registration, keeping the row for audit.
func (svc *Service) RemoveDevice(ctx context.Context, deviceID string) error {
	dev, err := svc.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.IsActive {
		return ErrNotFound
	}
	now := svc.now()
	dev.IsActive = false
	dev.DeactivationReason = ReasonAdminRemoved
	dev.DeactivatedAt = &now
	_, err = svc.repo.UpdateDevice(ctx, dev)
	return errors.Wrap(err, "deactivating device")
}

func (svc *Service) Limit() int { return svc.limit.Get() }

// UpdateGlobalLimit persists the new limit, then sweeps accounts whose
// active-device count now exceeds it, resetting their devices. The sweep is
// per-account, best effort: a failure mid-sweep leaves a partial reset.
func (svc *Service) UpdateGlobalLimit(ctx context.Context, newLimit int) (LimitUpdate, error) {
	if err := svc.limit.Set(ctx, newLimit); err != nil {
		return LimitUpdate{}, err
	}

	aggs, err := svc.repo.AccountAggregates(ctx)
	if err != nil {
		return LimitUpdate{}, errors.Wrap(err, "aggregating account devices")
	}

	var swept int
	for _, agg := range aggs {
		if agg.Active <= newLimit {
			continue
		}
		acct, err := svc.directory.GetByID(ctx, agg.AccountID)
		if err != nil {
			if errors.Cause(err) == account.ErrNotFound {
				continue // orphaned registrations; nothing to enforce
			}
			return LimitUpdate{NewLimit: newLimit, ResetUsersCount: swept}, err
		}
		if acct.Unlimited {
			continue
		}
		if _, err := svc.repo.DeactivateAccountDevices(ctx, agg.AccountID, ReasonLimitLowered); err != nil {
			return LimitUpdate{NewLimit: newLimit, ResetUsersCount: swept}, errors.Wrap(err, "sweeping over-limit account")
		}
		swept++
		svc.sendResetMail(acct, agg.Active)
	}
	return LimitUpdate{NewLimit: newLimit, ResetUsersCount: swept}, nil
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	devices, err := svc.repo.QueryAllDevices(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying devices")
	}

	limit := svc.limit.Get()
	stats := Stats{
		TotalDevices: len(devices),
		ByPlatform:   make(map[string]int),
		ByBrowser:    make(map[string]int),
		CurrentLimit: limit,
	}
	activeByAccount := make(map[string]int)
	for _, dev := range devices {
		if dev.IsActive {
			stats.ActiveDevices++
			activeByAccount[dev.AccountID]++
		}
		stats.ByPlatform[dev.Platform]++
		stats.ByBrowser[dev.Browser]++
	}
	stats.InactiveDevices = stats.TotalDevices - stats.ActiveDevices

	for accountID, active := range activeByAccount {
		if active <= limit {
			continue
		}
		acct, err := svc.directory.GetByID(ctx, accountID)
		if err != nil || acct.Unlimited {
			continue
		}
		stats.AccountsOverLimit++
	}
	return stats, nil
}

func (svc *Service) ListAccounts(ctx context.Context, filter *QueryFilter, page core.Pagination) ([]AccountSummary, core.PageMeta, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Clean()

	aggs, err := svc.repo.AccountAggregates(ctx)
	if err != nil {
		return nil, core.PageMeta{}, errors.Wrap(err, "aggregating account devices")
	}

	limit := svc.limit.Get()
	summaries := make([]AccountSummary, 0, len(aggs))
	for _, agg := range aggs {
		acct, err := svc.directory.GetByID(ctx, agg.AccountID)
		if err != nil {
			if errors.Cause(err) == account.ErrNotFound {
				continue
			}
			return nil, core.PageMeta{}, err
		}
		summary := AccountSummary{
			AccountID:    acct.ID,
			Name:         acct.Name,
			Username:     acct.Username,
			Email:        acct.Email,
			TotalDevices: agg.Total,
			ActiveCount:  agg.Active,
			LastActivity: agg.LastActivity,
			Unlimited:    acct.Unlimited,
			OverLimit:    !acct.Unlimited && agg.Active > limit,
		}
		if !summary.matches(filter) {
			continue
		}
		summaries = append(summaries, summary)
	}

	total := len(summaries)
	if page.Limit < 1 {
		return summaries, core.NewPageMeta(page, total), nil
	}
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return summaries[start:end], core.NewPageMeta(page, total), nil
}

func (s AccountSummary) matches(filter *QueryFilter) bool {
	switch filter.DeviceStatus {
	case FilterOverLimit:
		if !s.OverLimit {
			return false
		}
	case FilterUnder:
		if s.OverLimit {
			return false
		}
	}
	if filter.Search != "" {
		if !containsFold(s.Name, filter.Search) &&
			!containsFold(s.Username, filter.Search) &&
			!containsFold(s.Email, filter.Search) {
			return false
		}
	}
	return true
}

// containsFold does a case-insensitive substring match; needle is expected
// pre-lowered by QueryFilter.Clean.
func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

func (svc *Service) sendNewDeviceMail(acct account.Account, dev Device) {
	if svc.mailSvc == nil || acct.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject: fmt.Sprintf("[%s] New device signed in to your account", svc.conf.AppName),
		BodyStr: fmt.Sprintf(
			"A new device (%s) signed in to your account on %s. "+
				"If this was not you, contact your administrator.",
			dev.Name, dev.FirstSeen.Format("Jan 2, 2006 15:04 MST")),
	})
}

func (svc *Service) sendResetMail(acct account.Account, count int) {
	if svc.mailSvc == nil || acct.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject: fmt.Sprintf("[%s] Your authorized devices were reset", svc.conf.AppName),
		BodyStr: fmt.Sprintf(
			"%d device(s) were signed out of your account by an administrator. "+
				"You will be asked to register your device on next sign-in.", count),
	})
}

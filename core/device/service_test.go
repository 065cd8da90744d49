package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/device"
	inmemdb "github.com/somalabs/darasa/storage/database/inmem"
	testutil "github.com/somalabs/darasa/tests"
)

const (
	chromeWinUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36"
	firefoxWinUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0"
	safariMacUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1 Safari/605.1.15"
	chromeAndUA  = "Mozilla/5.0 (Linux; Android 11; Pixel 4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.101 Mobile Safari/537.36"
)

type fixture struct {
	svc     *device.Service
	limit   *device.LimitConfig
	clock   *testutil.Clock
	conf    *core.Config
	student account.Account
	teacher account.Account
	vip     account.Account // unlimited devices
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	f := &fixture{
		clock: testutil.NewClock(time.Time{}),
		conf: &core.Config{
			AppName:   "Darasa",
			Admission: core.AdmissionConfig{DeviceLimit: device.DefaultLimit},
		},
	}

	acctRepo := inmemdb.NewAccountRepository(db)
	f.student = testutil.CreateAccount(t, acctRepo, "Awa Traore", "awa", "awa@darasa.cd", "", []string{account.RoleStudent}, true, false)
	f.teacher = testutil.CreateAccount(t, acctRepo, "Moussa Kone", "moussa", "moussa@darasa.cd", "", []string{account.RoleTeacher}, true, false)
	f.vip = testutil.CreateAccount(t, acctRepo, "Fatou Diallo", "fatou", "fatou@darasa.cd", "", []string{account.RoleTeacher}, true, true)

	f.limit, err = device.NewLimitConfig(ctx, inmemdb.NewSettingsRepository(db), device.DefaultLimit)
	require.NoError(t, err)

	f.svc = device.NewService(
		inmemdb.NewDeviceRepository(db),
		f.limit,
		account.NewService(acctRepo),
		nil, // no mail in tests
		testutil.NopLogger{},
		f.conf,
		f.clock.Now,
	)
	return f
}

func registration(ua string) device.Registration {
	return device.Registration{
		Platform:         "Win32",
		ScreenResolution: "1920x1080",
		Timezone:         "Africa/Kinshasa",
		UserAgent:        ua,
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reg := registration(chromeWinUA)
	reg.IP = "41.243.11.5"

	dev, created, err := f.svc.Register(ctx, f.student, reg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, f.student.ID, dev.AccountID)
	assert.Equal(t, "Chrome on Windows", dev.Name)
	assert.Equal(t, "Chrome", dev.Browser)
	assert.Equal(t, "Windows", dev.OS)
	assert.Equal(t, "41.243.11.5", dev.IP)
	assert.Equal(t, 1, dev.LoginCount)
	assert.True(t, dev.IsActive)
	assert.Equal(t, f.clock.Now(), dev.FirstSeen)
	assert.Equal(t, f.clock.Now(), dev.LastActivity)

	t.Run("re-registration is idempotent", func(t *testing.T) {
		firstSeen := dev.FirstSeen
		later := f.clock.Advance(3 * time.Hour)

		again := registration(chromeWinUA)
		again.IP = "105.12.0.9" // same device, new network

		dev2, created, err := f.svc.Register(ctx, f.student, again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, dev.ID, dev2.ID)
		assert.Equal(t, 2, dev2.LoginCount)
		assert.Equal(t, firstSeen, dev2.FirstSeen)
		assert.Equal(t, later, dev2.LastActivity)
		assert.Equal(t, "105.12.0.9", dev2.IP)
	})

	t.Run("distinct metadata registers a new device", func(t *testing.T) {
		dev3, created, err := f.svc.Register(ctx, f.student, registration(firefoxWinUA))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, dev.ID, dev3.ID)
		assert.Equal(t, "Firefox on Windows", dev3.Name)
	})

	t.Run("limit reached", func(t *testing.T) {
		_, _, err := f.svc.Register(ctx, f.student, registration(safariMacUA))
		assert.Equal(t, device.ErrLimitExceeded, errors.Cause(err))

		devices, err := f.svc.AccountDevices(ctx, f.student.ID)
		require.NoError(t, err)
		assert.Len(t, devices, 2)
	})

	t.Run("unlimited account bypasses the limit", func(t *testing.T) {
		for _, ua := range []string{chromeWinUA, firefoxWinUA, safariMacUA} {
			_, created, err := f.svc.Register(ctx, f.vip, registration(ua))
			require.NoError(t, err)
			assert.True(t, created)
		}
	})
}

func TestCheckAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reg := registration(chromeWinUA)

	_, err := f.svc.CheckAuthorization(ctx, f.student, reg)
	assert.Equal(t, device.ErrNotAuthorized, errors.Cause(err))

	dev, _, err := f.svc.Register(ctx, f.student, reg)
	require.NoError(t, err)

	got, err := f.svc.CheckAuthorization(ctx, f.student, reg)
	require.NoError(t, err)
	assert.Equal(t, dev.ID, got.ID)

	// another account's identical metadata yields a different fingerprint
	_, err = f.svc.CheckAuthorization(ctx, f.teacher, reg)
	assert.Equal(t, device.ErrNotAuthorized, errors.Cause(err))

	_, err = f.svc.ResetAccountDevices(ctx, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckAuthorization(ctx, f.student, reg)
	assert.Equal(t, device.ErrNotAuthorized, errors.Cause(err))
}

// failingRepo simulates an unavailable device store.
type failingRepo struct {
	device.Repository
	err error
}

func (repo failingRepo) GetActiveByFingerprint(context.Context, string, string) (device.Device, error) {
	return device.Device{}, repo.err
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("authorized", func(t *testing.T) {
		adm, err := f.svc.Admit(ctx, f.student, registration(chromeWinUA))
		require.NoError(t, err)
		assert.True(t, adm.Authorized)
		assert.True(t, adm.Created)
		require.NotNil(t, adm.Device)
		assert.Equal(t, "Chrome on Windows", adm.Device.Name)

		adm, err = f.svc.Admit(ctx, f.student, registration(chromeWinUA))
		require.NoError(t, err)
		assert.True(t, adm.Authorized)
		assert.False(t, adm.Created)
	})

	t.Run("limit exceeded", func(t *testing.T) {
		_, err := f.svc.Admit(ctx, f.student, registration(firefoxWinUA))
		require.NoError(t, err)

		adm, err := f.svc.Admit(ctx, f.student, registration(safariMacUA))
		assert.Equal(t, device.ErrLimitExceeded, errors.Cause(err))
		assert.True(t, adm.LimitExceeded)
		assert.False(t, adm.Authorized)
	})

	t.Run("store failure", func(t *testing.T) {
		broken := failingRepo{err: errors.New("store down")}
		mkSvc := func(strict bool) *device.Service {
			conf := &core.Config{
				AppName:   "Darasa",
				Admission: core.AdmissionConfig{DeviceLimit: device.DefaultLimit, Strict: strict},
			}
			return device.NewService(broken, f.limit, nil, nil, testutil.NopLogger{}, conf, f.clock.Now)
		}

		// permissive mode degrades to allowing access
		adm, err := mkSvc(false).Admit(ctx, f.student, registration(chromeWinUA))
		require.NoError(t, err)
		assert.True(t, adm.Authorized)
		assert.True(t, adm.Degraded)
		assert.Nil(t, adm.Device)

		// strict mode hard-fails
		_, err = mkSvc(true).Admit(ctx, f.student, registration(chromeWinUA))
		assert.Error(t, err)
		assert.NotEqual(t, device.ErrLimitExceeded, errors.Cause(err))
	})
}

func TestResetAccountDevices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Register(ctx, f.student, registration(chromeWinUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.student, registration(firefoxWinUA))
	require.NoError(t, err)

	count, err := f.svc.ResetAccountDevices(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	devices, err := f.svc.AccountDevices(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, devices, 2) // rows are kept for audit
	for _, dev := range devices {
		assert.False(t, dev.IsActive)
		assert.Equal(t, device.ReasonAdminReset, dev.DeactivationReason)
		assert.NotNil(t, dev.DeactivatedAt)
	}

	t.Run("repeated reset is a no-op", func(t *testing.T) {
		count, err := f.svc.ResetAccountDevices(ctx, f.student.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.ResetAccountDevices(ctx, "c4f2e6a0-0000-4000-8000-000000000000")
		assert.Equal(t, account.ErrNotFound, errors.Cause(err))
	})
}

func TestRemoveDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reg := registration(chromeWinUA)
	dev, _, err := f.svc.Register(ctx, f.student, reg)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveDevice(ctx, dev.ID))

	_, err = f.svc.CheckAuthorization(ctx, f.student, reg)
	assert.Equal(t, device.ErrNotAuthorized, errors.Cause(err))

	devices, err := f.svc.AccountDevices(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, device.ReasonAdminRemoved, devices[0].DeactivationReason)

	t.Run("already removed", func(t *testing.T) {
		err := f.svc.RemoveDevice(ctx, dev.ID)
		assert.Equal(t, device.ErrNotFound, errors.Cause(err))
	})

	t.Run("unknown device", func(t *testing.T) {
		err := f.svc.RemoveDevice(ctx, "0b9a2d64-0000-4000-8000-000000000000")
		assert.Equal(t, device.ErrNotFound, errors.Cause(err))
	})
}

func TestUpdateGlobalLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("bounds", func(t *testing.T) {
		for _, limit := range []int{0, -1, device.MaxLimit + 1} {
			_, err := f.svc.UpdateGlobalLimit(ctx, limit)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, "new_limit", vErr.Fields[0].Field)
			assert.Equal(t, device.DefaultLimit, f.svc.Limit())
		}
	})

	t.Run("raise sweeps nothing", func(t *testing.T) {
		update, err := f.svc.UpdateGlobalLimit(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, device.LimitUpdate{NewLimit: 3, ResetUsersCount: 0}, update)
		assert.Equal(t, 3, f.svc.Limit())
	})

	// fill up: student and vip at three devices each
	for _, ua := range []string{chromeWinUA, firefoxWinUA, safariMacUA} {
		_, _, err := f.svc.Register(ctx, f.student, registration(ua))
		require.NoError(t, err)
		_, _, err = f.svc.Register(ctx, f.vip, registration(ua))
		require.NoError(t, err)
	}
	_, _, err := f.svc.Register(ctx, f.teacher, registration(chromeWinUA))
	require.NoError(t, err)

	t.Run("lowering resets over-limit accounts", func(t *testing.T) {
		update, err := f.svc.UpdateGlobalLimit(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, update.NewLimit)
		assert.Equal(t, 1, update.ResetUsersCount) // student only; vip is unlimited

		devices, err := f.svc.AccountDevices(ctx, f.student.ID)
		require.NoError(t, err)
		for _, dev := range devices {
			assert.False(t, dev.IsActive)
			assert.Equal(t, device.ReasonLimitLowered, dev.DeactivationReason)
		}

		devices, err = f.svc.AccountDevices(ctx, f.vip.ID)
		require.NoError(t, err)
		for _, dev := range devices {
			assert.True(t, dev.IsActive)
		}

		// teacher was within the new limit
		devices, err = f.svc.AccountDevices(ctx, f.teacher.ID)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.True(t, devices[0].IsActive)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalDevices)
	assert.Equal(t, device.DefaultLimit, empty.CurrentLimit)

	dev, _, err := f.svc.Register(ctx, f.student, registration(chromeWinUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.student, registration(firefoxWinUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.teacher, registration(chromeAndUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.vip, registration(safariMacUA))
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveDevice(ctx, dev.ID))

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalDevices)
	assert.Equal(t, 3, stats.ActiveDevices)
	assert.Equal(t, 1, stats.InactiveDevices)
	assert.Equal(t, map[string]int{"Chrome": 2, "Firefox": 1, "Safari": 1}, stats.ByBrowser)
	assert.Zero(t, stats.AccountsOverLimit)
	assert.Equal(t, device.DefaultLimit, stats.CurrentLimit)

	t.Run("over-limit accounts after a lowered limit", func(t *testing.T) {
		_, _, err := f.svc.Register(ctx, f.teacher, registration(firefoxWinUA))
		require.NoError(t, err)

		// lower the live value without sweeping
		require.NoError(t, f.limit.Set(ctx, 1))

		stats, err := f.svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.CurrentLimit)
		// teacher now holds 2 active devices; student is back to 1 and
		// vip is exempt
		assert.Equal(t, 1, stats.AccountsOverLimit)
	})
}

func TestListAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Register(ctx, f.student, registration(chromeWinUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.student, registration(firefoxWinUA))
	require.NoError(t, err)
	_, _, err = f.svc.Register(ctx, f.teacher, registration(chromeAndUA))
	require.NoError(t, err)
	for _, ua := range []string{chromeWinUA, firefoxWinUA, safariMacUA} {
		_, _, err = f.svc.Register(ctx, f.vip, registration(ua))
		require.NoError(t, err)
	}

	summaries, meta, err := f.svc.ListAccounts(ctx, nil, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, 3, meta.Total)

	byID := make(map[string]device.AccountSummary, len(summaries))
	for _, s := range summaries {
		byID[s.AccountID] = s
	}
	assert.Equal(t, 2, byID[f.student.ID].ActiveCount)
	assert.False(t, byID[f.student.ID].OverLimit)
	assert.True(t, byID[f.vip.ID].Unlimited)
	assert.False(t, byID[f.vip.ID].OverLimit) // 3 devices, but unlimited
	require.NotNil(t, byID[f.teacher.ID].LastActivity)

	t.Run("search", func(t *testing.T) {
		filter := &device.QueryFilter{Search: "Moussa"}
		summaries, _, err := f.svc.ListAccounts(ctx, filter, core.Pagination{})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, f.teacher.ID, summaries[0].AccountID)
	})

	t.Run("over-limit filter", func(t *testing.T) {
		require.NoError(t, f.limit.Set(ctx, 1))
		defer func() { require.NoError(t, f.limit.Set(ctx, device.DefaultLimit)) }()

		filter := &device.QueryFilter{DeviceStatus: device.FilterOverLimit}
		summaries, _, err := f.svc.ListAccounts(ctx, filter, core.Pagination{})
		require.NoError(t, err)
		require.Len(t, summaries, 1) // vip is unlimited, teacher has one device
		assert.Equal(t, f.student.ID, summaries[0].AccountID)
		assert.True(t, summaries[0].OverLimit)
	})

	t.Run("pagination", func(t *testing.T) {
		page1, meta, err := f.svc.ListAccounts(ctx, nil, core.Pagination{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page1, 2)
		assert.Equal(t, 3, meta.Total)
		assert.Equal(t, 2, meta.TotalPages)

		page2, _, err := f.svc.ListAccounts(ctx, nil, core.Pagination{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page2, 1)
		assert.NotEqual(t, page1[0].AccountID, page2[0].AccountID)
	})
}

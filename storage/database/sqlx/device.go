package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core/device"
)

type DeviceRepository struct {
	db *sqlx.DB
}

var _ device.Repository = (*DeviceRepository)(nil) // interface compliance check

func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

type deviceRow struct {
	ID                 string       `db:"id"`
	AccountID          string       `db:"account_id"`
	Fingerprint        string       `db:"fingerprint"`
	Name               string       `db:"name"`
	Platform           string       `db:"platform"`
	Browser            string       `db:"browser"`
	OS                 string       `db:"os"`
	ScreenResolution   string       `db:"screen_resolution"`
	Timezone           string       `db:"timezone"`
	UserAgent          string       `db:"user_agent"`
	IP                 string       `db:"ip"`
	FirstSeen          sql.NullTime `db:"first_seen"`
	LastActivity       sql.NullTime `db:"last_activity"`
	LoginCount         int          `db:"login_count"`
	IsActive           bool         `db:"is_active"`
	DeactivationReason string       `db:"deactivation_reason"`
	DeactivatedAt      sql.NullTime `db:"deactivated_at"`
}

func (r deviceRow) toDevice() device.Device {
	dev := device.Device{
		ID:                 r.ID,
		AccountID:          r.AccountID,
		Fingerprint:        r.Fingerprint,
		Name:               r.Name,
		Platform:           r.Platform,
		Browser:            r.Browser,
		OS:                 r.OS,
		ScreenResolution:   r.ScreenResolution,
		Timezone:           r.Timezone,
		UserAgent:          r.UserAgent,
		IP:                 r.IP,
		FirstSeen:          r.FirstSeen.Time,
		LastActivity:       r.LastActivity.Time,
		LoginCount:         r.LoginCount,
		IsActive:           r.IsActive,
		DeactivationReason: r.DeactivationReason,
	}
	if r.DeactivatedAt.Valid {
		t := r.DeactivatedAt.Time
		dev.DeactivatedAt = &t
	}
	return dev
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

const deviceCols = `id, account_id, fingerprint, name, platform, browser, os, screen_resolution,
	timezone, user_agent, ip, first_seen, last_activity, login_count, is_active,
	deactivation_reason, deactivated_at`

func (repo *DeviceRepository) CreateDevice(ctx context.Context, dev device.Device) (device.Device, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO device (`+deviceCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		dev.ID, dev.AccountID, dev.Fingerprint, dev.Name, dev.Platform, dev.Browser, dev.OS,
		dev.ScreenResolution, dev.Timezone, dev.UserAgent, dev.IP, nullTime(dev.FirstSeen),
		nullTime(dev.LastActivity), dev.LoginCount, dev.IsActive, dev.DeactivationReason,
		nullTimePtr(dev.DeactivatedAt))
	if err != nil {
		return device.Device{}, errors.Wrap(err, "inserting device")
	}
	return dev, nil
}

func (repo *DeviceRepository) GetDevice(ctx context.Context, id string) (device.Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return device.Device{}, device.ErrNotFound
	}
	var row deviceRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+deviceCols+` FROM device WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return device.Device{}, device.ErrNotFound
		}
		return device.Device{}, errors.Wrap(err, "finding device")
	}
	return row.toDevice(), nil
}

func (repo *DeviceRepository) GetActiveByFingerprint(ctx context.Context, accountID, fingerprint string) (device.Device, error) {
	var row deviceRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+deviceCols+` FROM device
		 WHERE account_id = $1 AND fingerprint = $2 AND is_active`,
		accountID, fingerprint)
	if err != nil {
		if err == sql.ErrNoRows {
			return device.Device{}, device.ErrNotFound
		}
		return device.Device{}, errors.Wrap(err, "finding device by fingerprint")
	}
	return row.toDevice(), nil
}

func (repo *DeviceRepository) QueryAccountDevices(ctx context.Context, accountID string) ([]device.Device, error) {
	var rows []deviceRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+deviceCols+` FROM device WHERE account_id = $1 ORDER BY first_seen`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "querying account devices")
	}
	devices := make([]device.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, row.toDevice())
	}
	return devices, nil
}

func (repo *DeviceRepository) CountActiveDevices(ctx context.Context, accountID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM device WHERE account_id = $1 AND is_active`, accountID)
	if err != nil {
		return 0, errors.Wrap(err, "counting active devices")
	}
	return count, nil
}

func (repo *DeviceRepository) UpdateDevice(ctx context.Context, dev device.Device) (device.Device, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE device
		 SET name = $2, ip = $3, last_activity = $4, login_count = $5, is_active = $6,
		     deactivation_reason = $7, deactivated_at = $8
		 WHERE id = $1`,
		dev.ID, dev.Name, dev.IP, nullTime(dev.LastActivity), dev.LoginCount, dev.IsActive,
		dev.DeactivationReason, nullTimePtr(dev.DeactivatedAt))
	if err != nil {
		return device.Device{}, errors.Wrap(err, "updating device")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return device.Device{}, device.ErrNotFound
	}
	return dev, nil
}

func (repo *DeviceRepository) DeactivateAccountDevices(ctx context.Context, accountID, reason string) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE device
		 SET is_active = false, deactivation_reason = $2, deactivated_at = NOW()
		 WHERE account_id = $1 AND is_active`,
		accountID, reason)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating account devices")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deactivating account devices")
}

func (repo *DeviceRepository) QueryAllDevices(ctx context.Context) ([]device.Device, error) {
	var rows []deviceRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT `+deviceCols+` FROM device ORDER BY first_seen`)
	if err != nil {
		return nil, errors.Wrap(err, "querying devices")
	}
	devices := make([]device.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, row.toDevice())
	}
	return devices, nil
}

func (repo *DeviceRepository) AccountAggregates(ctx context.Context) ([]device.AccountAggregate, error) {
	var rows []struct {
		AccountID    string       `db:"account_id"`
		Total        int          `db:"total"`
		Active       int          `db:"active"`
		LastActivity sql.NullTime `db:"last_activity"`
	}
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT account_id,
		        COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE is_active) AS active,
		        MAX(last_activity) AS last_activity
		 FROM device
		 GROUP BY account_id
		 ORDER BY account_id`)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating devices")
	}
	aggs := make([]device.AccountAggregate, 0, len(rows))
	for _, row := range rows {
		agg := device.AccountAggregate{
			AccountID: row.AccountID,
			Total:     row.Total,
			Active:    row.Active,
		}
		if row.LastActivity.Valid {
			t := row.LastActivity.Time
			agg.LastActivity = &t
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

type SettingsRepository struct {
	db *sqlx.DB
}

var _ device.SettingsRepository = (*SettingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const deviceLimitKey = "device_limit"

func (repo *SettingsRepository) GetDeviceLimit(ctx context.Context) (int, error) {
	var value string
	err := repo.db.GetContext(ctx, &value, `SELECT value FROM setting WHERE key = $1`, deviceLimitKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return device.DefaultLimit, nil
		}
		return 0, errors.Wrap(err, "reading device limit")
	}
	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrap(err, "parsing device limit")
	}
	return limit, nil
}

func (repo *SettingsRepository) SetDeviceLimit(ctx context.Context, limit int) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO setting (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		deviceLimitKey, strconv.Itoa(limit))
	return errors.Wrap(err, "saving device limit")
}

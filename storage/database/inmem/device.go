package inmemdb

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/somalabs/darasa/core/device"
)

type deviceRepository struct {
	db *deviceTable
}

var _ device.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(db *DB) device.Repository {
	return &deviceRepository{db: db.device}
}

func (repo *deviceRepository) CreateDevice(_ context.Context, dev device.Device) (device.Device, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[dev.ID] = &dev
	return dev, nil
}

func (repo *deviceRepository) GetDevice(_ context.Context, id string) (device.Device, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if dev, ok := repo.db.table[id]; ok {
		return *dev, nil
	}
	return device.Device{}, device.ErrNotFound
}

func (repo *deviceRepository) GetActiveByFingerprint(_ context.Context, accountID, fingerprint string) (device.Device, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, dev := range repo.db.table {
		if dev.AccountID == accountID && dev.Fingerprint == fingerprint && dev.IsActive {
			return *dev, nil
		}
	}
	return device.Device{}, device.ErrNotFound
}

func (repo *deviceRepository) QueryAccountDevices(_ context.Context, accountID string) ([]device.Device, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var devices []device.Device
	for _, dev := range repo.db.table {
		if dev.AccountID == accountID {
			devices = append(devices, *dev)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].FirstSeen.Before(devices[j].FirstSeen) })
	return devices, nil
}

func (repo *deviceRepository) CountActiveDevices(_ context.Context, accountID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, dev := range repo.db.table {
		if dev.AccountID == accountID && dev.IsActive {
			count++
		}
	}
	return count, nil
}

func (repo *deviceRepository) UpdateDevice(_ context.Context, dev device.Device) (device.Device, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[dev.ID]; !ok {
		return device.Device{}, device.ErrNotFound
	}
	repo.db.table[dev.ID] = &dev
	return dev, nil
}

func (repo *deviceRepository) DeactivateAccountDevices(_ context.Context, accountID, reason string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	var count int
	for _, dev := range repo.db.table {
		if dev.AccountID == accountID && dev.IsActive {
			dev.IsActive = false
			dev.DeactivationReason = reason
			dev.DeactivatedAt = &now
			count++
		}
	}
	return count, nil
}

func (repo *deviceRepository) QueryAllDevices(_ context.Context) ([]device.Device, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	devices := make([]device.Device, 0, len(repo.db.table))
	for _, dev := range repo.db.table {
		devices = append(devices, *dev)
	}
	return devices, nil
}

func (repo *deviceRepository) AccountAggregates(_ context.Context) ([]device.AccountAggregate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byAccount := make(map[string]*device.AccountAggregate)
	for _, dev := range repo.db.table {
		agg, ok := byAccount[dev.AccountID]
		if !ok {
			agg = &device.AccountAggregate{AccountID: dev.AccountID}
			byAccount[dev.AccountID] = agg
		}
		agg.Total++
		if dev.IsActive {
			agg.Active++
		}
		if agg.LastActivity == nil || dev.LastActivity.After(*agg.LastActivity) {
			last := dev.LastActivity
			agg.LastActivity = &last
		}
	}

	aggs := make([]device.AccountAggregate, 0, len(byAccount))
	for _, agg := range byAccount {
		aggs = append(aggs, *agg)
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].AccountID < aggs[j].AccountID })
	return aggs, nil
}

// settingsRepository backs the persisted global device limit.
type settingsRepository struct {
	db *settingTable
}

var _ device.SettingsRepository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *DB) device.SettingsRepository {
	return &settingsRepository{db: db.setting}
}

func (repo *settingsRepository) GetDeviceLimit(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	val, ok := repo.db.table["device_limit"]
	if !ok {
		return device.DefaultLimit, nil
	}
	return strconv.Atoi(val)
}

func (repo *settingsRepository) SetDeviceLimit(_ context.Context, limit int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table["device_limit"] = strconv.Itoa(limit)
	return nil
}

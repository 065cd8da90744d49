// Package inmemdb provides in-memory repositories used by the tests and for
// running the API without a database.
package inmemdb

import (
	"sync"

	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/catalog"
	"github.com/somalabs/darasa/core/device"
	"github.com/somalabs/darasa/core/meeting"
)

type (
	accountTable struct {
		sync.RWMutex
		table map[string]*account.Account
	}

	catalogTable struct {
		sync.RWMutex
		stages   map[string]*catalog.Stage
		subjects map[string]*catalog.Subject
	}

	meetingTable struct {
		sync.RWMutex
		table map[string]*meeting.Meeting
	}

	deviceTable struct {
		sync.RWMutex
		table map[string]*device.Device
	}

	settingTable struct {
		sync.RWMutex
		table map[string]string
	}

	DB struct {
		account *accountTable
		catalog *catalogTable
		meeting *meetingTable
		device  *deviceTable
		setting *settingTable
	}
)

func Open() (*DB, error) {
	db := &DB{
		account: &accountTable{table: make(map[string]*account.Account)},
		catalog: &catalogTable{
			stages:   make(map[string]*catalog.Stage),
			subjects: make(map[string]*catalog.Subject),
		},
		meeting: &meetingTable{table: make(map[string]*meeting.Meeting)},
		device:  &deviceTable{table: make(map[string]*device.Device)},
		setting: &settingTable{table: make(map[string]string)},
	}
	return db, nil
}

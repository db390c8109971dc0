package inmemdb

import (
	"sync"

	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

type (
	// DB is a process-local store used by tests and by the API when no database is configured.
	DB struct {
		user     *userTable
		schedule *scheduleTables
		device   *deviceTable
		testBell *testBellTable
		audit    *auditTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	// groups, schedules and bells share a lock: they are always written together.
	scheduleTables struct {
		groups    map[string]*schedule.Group
		schedules map[string]*schedule.Schedule
		bells     map[string]*schedule.Bell
		mutex     sync.RWMutex
	}

	deviceTable struct {
		table map[string]*device.Device
		mutex sync.RWMutex
	}

	testBellTable struct {
		signal testbell.Signal
		mutex  sync.RWMutex
	}

	auditTable struct {
		entries []audit.Entry
		lastID  int64
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		schedule: &scheduleTables{
			groups:    make(map[string]*schedule.Group),
			schedules: make(map[string]*schedule.Schedule),
			bells:     make(map[string]*schedule.Bell),
		},
		device:   &deviceTable{table: make(map[string]*device.Device)},
		testBell: &testBellTable{},
		audit:    &auditTable{},
	}
}

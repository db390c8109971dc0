package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

// NewValidator returns a validator with every custom tag of the app registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.ApplyDefaults()
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateGroup(t *testing.T, repo schedule.Repository, name, userID string) schedule.Group {
	grp, err := repo.CreateGroup(context.Background(), schedule.Group{Name: name, UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("createGroup() failed: %v", err)
	}
	return grp
}

func CreateSchedule(t *testing.T, repo schedule.Repository, groupID, name, userID string, active bool) schedule.Schedule {
	ctx := context.Background()
	sched, err := repo.CreateSchedule(ctx, schedule.Schedule{
		Name:            name,
		ScheduleGroupID: groupID,
		UserID:          userID,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createSchedule() failed: %v", err)
	}
	if active {
		if _, err = repo.SetActiveSchedule(ctx, sched.ID, groupID); err != nil {
			t.Fatalf("createSchedule() failed: %v", err)
		}
		sched.IsActive = true
	}
	return sched
}

func CreateBell(t *testing.T, repo schedule.Repository, scheduleID, hhmmss, label string, days ...int) schedule.Bell {
	bell, err := repo.CreateBell(context.Background(), schedule.Bell{
		ScheduleID: scheduleID,
		Time:       hhmmss,
		Label:      label,
		DaysOfWeek: schedule.Weekdays(days).Normalize(),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createBell() failed: %v", err)
	}
	return bell
}

func CreateDevice(t *testing.T, repo device.Repository, id, name, groupID string) device.Device {
	dev, err := repo.CreateDevice(context.Background(), device.Device{
		ID:              id,
		DeviceName:      name,
		ScheduleGroupID: null.NewString(groupID, groupID != ""),
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createDevice() failed: %v", err)
	}
	return dev
}

// EventRecorder is a core.EventPublisher keeping every published event.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.ChangeEvent
}

func (r *EventRecorder) Publish(_ context.Context, evt core.ChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns the published events, oldest first.
func (r *EventRecorder) Events() []core.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ChangeEvent(nil), r.events...)
}

// Kinds returns "<table> <type>" for every published event, oldest first.
func (r *EventRecorder) Kinds() []string {
	evts := r.Events()
	kinds := make([]string, 0, len(evts))
	for _, evt := range evts {
		kinds = append(kinds, evt.Table+" "+evt.Type)
	}
	return kinds
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

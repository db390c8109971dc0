package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// Actions
const (
	ActionCreateScheduleGroup        = "CREATE_SCHEDULE_GROUP"
	ActionDeleteScheduleGroup        = "DELETE_SCHEDULE_GROUP"
	ActionCreateSchedule             = "CREATE_SCHEDULE"
	ActionSetActiveSchedule          = "SET_ACTIVE_SCHEDULE"
	ActionCreateBell                 = "CREATE_BELL"
	ActionUpdateBell                 = "UPDATE_BELL"
	ActionDeleteBell                 = "DELETE_BELL"
	ActionTriggerTestBell            = "TRIGGER_TEST_BELL"
	ActionUpdateNotificationSettings = "UPDATE_NOTIFICATION_SETTINGS"
	ActionUpdateProfile              = "UPDATE_PROFILE"
	ActionDeleteAccount              = "DELETE_ACCOUNT"
	ActionRegisterDevice             = "REGISTER_DEVICE"
	ActionAssignDevice               = "ASSIGN_DEVICE"
	ActionDeleteDevice               = "DELETE_DEVICE"
)

var errNoUser = errors.New("cannot log action: no authenticated user")

type Entry struct {
	ID        int64                  `json:"id"`
	UserID    string                 `json:"user_id"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry, exec ...core.DBExecutor) (Entry, error)
		QueryEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Entry, error)
	}

	Service interface {
		// Log records an action in the background; failures are only logged.
		Log(userID, action string, details map[string]interface{})
		Recent(ctx context.Context, limit int) ([]Entry, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
		sync   bool
	}
)

var _ Service = (*service)(nil)

const maxRecent = 200

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// NewSyncService logs synchronously, for tests.
func NewSyncService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger, sync: true}
}

func (svc *service) Log(userID, action string, details map[string]interface{}) {
	if userID == "" {
		svc.logger.Error(fmt.Sprintf("audit %s: %v", action, errNoUser), errNoUser)
		return
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	entry := Entry{UserID: userID, Action: action, Details: details, CreatedAt: time.Now().UTC()}

	write := func() {
		// detached from the request: it may be gone by the time we write
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := svc.repo.CreateEntry(ctx, entry); err != nil {
			svc.logger.Error(fmt.Sprintf("audit %s: %v", action, err), err, map[string]interface{}{"user_id": userID})
		}
	}
	if svc.sync {
		write()
		return
	}
	go write()
}

func (svc *service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = 50
	}
	entries, err := svc.repo.QueryEntries(ctx, limit)
	return entries, errors.Wrap(err, "querying audit log")
}

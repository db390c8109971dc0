package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/lop69/BELL-SYSTEM-V2/apps/api/echo"
	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/notification"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/devicebus"
	"github.com/lop69/BELL-SYSTEM-V2/services/email"
	"github.com/lop69/BELL-SYSTEM-V2/services/logger"
	"github.com/lop69/BELL-SYSTEM-V2/services/realtime"
	"github.com/lop69/BELL-SYSTEM-V2/storage/database/inmem"
	"github.com/lop69/BELL-SYSTEM-V2/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

const noContentType = "none"

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte

	// contentType overrides the default JSON header; noContentType drops it.
	contentType string
}

// testApp is a server backed by a fresh in-memory database.
type testApp struct {
	echoapi.Server

	conf      *core.Config
	usrRepo   user.Repository
	schedRepo schedule.Repository
	devRepo   device.Repository
	auditRepo audit.Repository
	mailSvc   *emailsvc.ConsoleServiceMock
	center    *notification.Center
	broker    *realtime.Broker
}

func newTestApp(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(logger)
	user.LoadCommonPasswords(logger)
	validate, translator := testutil.NewValidator()

	db := inmemdb.Open()
	ta := &testApp{
		conf:      conf,
		usrRepo:   inmemdb.NewUserRepository(db),
		schedRepo: inmemdb.NewScheduleRepository(db),
		devRepo:   inmemdb.NewDeviceRepository(db),
		auditRepo: inmemdb.NewAuditRepository(db),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
		center:    notification.NewCenter(),
		broker:    realtime.NewBroker(logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe := ta.broker.Subscribe(notification.Tables...)
	go ta.center.Run(ctx, events)
	t.Cleanup(func() {
		cancel()
		unsubscribe()
	})

	schedSvc := schedule.NewService(conf, nil, ta.schedRepo, ta.broker)
	ta.Server = echoapi.NewServer(conf, nil, &echoapi.Deps{
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       user.NewService(conf, nil, ta.usrRepo, ta.mailSvc),
		ScheduleSvc:   schedSvc,
		DeviceSvc:     device.NewService(conf, ta.devRepo, schedSvc, ta.broker, devicebus.Nop, logger),
		TestBellSvc:   testbell.NewService(conf, inmemdb.NewTestBellRepository(db), devicebus.Nop, logger),
		AuditSvc:      audit.NewSyncService(ta.auditRepo, logger),
		Notifications: ta.center,
		Broker:        ta.broker,
	})
	return ta
}

func (ta *testApp) token(t *testing.T, usr user.User) string {
	token, err := ta.Authenticator().GenerateToken(ta.Authenticator().GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

// auditActions lists the recorded actions, newest first.
func (ta *testApp) auditActions(t *testing.T) []string {
	entries, err := ta.auditRepo.QueryEntries(context.Background(), 100)
	if err != nil {
		t.Fatalf("QueryEntries(): %v", err)
	}
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func (ta *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			switch tt.contentType {
			case "":
			case noContentType:
				req.Header.Del("Content-Type")
			default:
				req.Header.Set("Content-Type", tt.contentType)
			}
			ta.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, data []byte, dest interface{}) {
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("unmarchall(%s): %v", data, err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the body only when tt.wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

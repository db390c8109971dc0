package echoapi_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/tests"
)

func dialRealtime(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime?" + query
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func Test_realtimeApi_stream(t *testing.T) {
	ta := newTestApp(t)
	student := testutil.CreateUser(t, ta.usrRepo, "student@test.io", "", user.RoleStudent, true)
	srv := httptest.NewServer(ta)
	t.Cleanup(srv.Close)

	t.Run("Token required", func(t *testing.T) {
		_, err := dialRealtime(t, srv, "")
		assert.Error(t, err)
	})

	baseline := ta.broker.Subscribers()
	conn, err := dialRealtime(t, srv, "token="+ta.token(t, student)+"&tables=devices,bells")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ta.broker.Subscribers() == baseline+1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	ta.broker.Publish(ctx, core.NewChangeEvent(core.TableSchedules, core.ChangeInsert, "sched-1", nil)) // filtered out
	ta.broker.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeUpdate, "esp-01", map[string]bool{"is_connected": true}))

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var evt core.ChangeEvent
	require.NoError(t, websocket.JSON.Receive(conn, &evt))
	assert.Equal(t, core.TableDevices, evt.Table)
	assert.Equal(t, core.ChangeUpdate, evt.Type)
	assert.Equal(t, "esp-01", evt.RecordID)

	// closing the socket releases the subscription
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ta.broker.Subscribers() == baseline }, time.Second, 10*time.Millisecond)
}

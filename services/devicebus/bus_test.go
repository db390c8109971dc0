package devicebus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {}

func TestBus_NotifyAssignment(t *testing.T) {
	client := &fakeClient{}
	bus := newBus(client, core.NewTestConfig(), logsvc.NewNopLogger())

	dev := device.Device{ID: "esp32-01", ScheduleGroupID: null.StringFrom("g-1")}
	require.NoError(t, bus.NotifyAssignment(context.Background(), dev))

	require.Len(t, client.msgs, 1)
	msg := client.msgs[0]
	assert.Equal(t, "bells/devices/esp32-01/schedule", msg.topic)
	assert.True(t, msg.retained)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "esp32-01", body["device_id"])
	assert.Equal(t, "g-1", body["schedule_group_id"])
	assert.Nil(t, body["schedule_id"])
}

func TestBus_NotifyTestBell(t *testing.T) {
	client := &fakeClient{}
	bus := newBus(client, core.NewTestConfig(), logsvc.NewNopLogger())
	at := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	require.NoError(t, bus.NotifyTestBell(context.Background(), testbell.Signal{IsActive: true, TriggeredAt: null.TimeFrom(at)}))

	require.Len(t, client.msgs, 1)
	assert.Equal(t, "bells/test-bell", client.msgs[0].topic)
	assert.False(t, client.msgs[0].retained)
	assert.JSONEq(t, `{"test_bell_active":true,"triggered_at":"2024-03-04T08:00:00Z"}`, string(client.msgs[0].payload))
}

func TestBus_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	bus := newBus(client, core.NewTestConfig(), logsvc.NewNopLogger())

	err := bus.NotifyTestBell(context.Background(), testbell.Signal{IsActive: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

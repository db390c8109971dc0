package devicebus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 5 * time.Second
)

// publisher is the part of mqtt.Client the bus uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type (
	assignmentMsg struct {
		DeviceID        string  `json:"device_id"`
		ScheduleGroupID *string `json:"schedule_group_id"`
		ScheduleID      *string `json:"schedule_id"`
	}

	testBellMsg struct {
		TestBellActive bool      `json:"test_bell_active"`
		TriggeredAt    time.Time `json:"triggered_at"`
	}
)

// Bus pushes schedule assignments and test signals to the bells over MQTT.
// Devices still poll bell-sync, so a lost message only delays a change.
type Bus struct {
	client publisher
	conf   core.MQTTConfig
	logger core.Logger
}

var (
	_ device.Notifier   = (*Bus)(nil)
	_ testbell.Notifier = (*Bus)(nil)
)

func Connect(conf *core.Config, logger core.Logger) (*Bus, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.MQTT.Broker)
	opts.SetClientID(conf.MQTT.ClientID)
	if conf.MQTT.Username != "" {
		opts.SetUsername(conf.MQTT.Username)
	}
	if conf.MQTT.Password != "" {
		opts.SetPassword(conf.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn(fmt.Sprintf("mqtt connection lost: %v", err), err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "connecting to mqtt broker")
	}
	return newBus(client, conf, logger), nil
}

func newBus(client publisher, conf *core.Config, logger core.Logger) *Bus {
	return &Bus{client: client, conf: conf.MQTT, logger: logger}
}

func (b *Bus) publish(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding mqtt payload")
	}
	token := b.client.Publish(topic, qosAtLeastOnce, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publishing to %s: timed out", topic)
	}
	return errors.Wrap(token.Error(), "publishing to "+topic)
}

// NotifyAssignment is retained so a device reconnecting later gets its latest assignment.
func (b *Bus) NotifyAssignment(_ context.Context, dev device.Device) error {
	return b.publish(b.conf.Topic("devices", dev.ID, "schedule"), true, assignmentMsg{
		DeviceID:        dev.ID,
		ScheduleGroupID: dev.ScheduleGroupID.Ptr(),
		ScheduleID:      dev.ScheduleID.Ptr(),
	})
}

func (b *Bus) NotifyTestBell(_ context.Context, sig testbell.Signal) error {
	return b.publish(b.conf.Topic("test-bell"), false, testBellMsg{
		TestBellActive: sig.IsActive,
		TriggeredAt:    sig.TriggeredAt.Time,
	})
}

func (b *Bus) Close() {
	b.client.Disconnect(250)
}

type nopBus struct{}

func (nopBus) NotifyAssignment(context.Context, device.Device) error { return nil }

func (nopBus) NotifyTestBell(context.Context, testbell.Signal) error { return nil }

// Nop is used when no broker is configured.
var Nop = nopBus{}

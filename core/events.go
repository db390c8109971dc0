package core

import (
	"context"
	"time"
)

// Change types, mirroring the row operation that produced them.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// Tables emitting change events.
const (
	TableScheduleGroups = "schedule_groups"
	TableSchedules      = "schedules"
	TableBells          = "bells"
	TableDevices        = "devices"
)

// ChangeEvent describes a committed write on one row.
type ChangeEvent struct {
	Table    string      `json:"table"`
	Type     string      `json:"type"`
	RecordID string      `json:"record_id"`
	Record   interface{} `json:"record,omitempty"`
	At       time.Time   `json:"at"`
}

// EventPublisher fans ChangeEvents out to whoever listens (websocket clients, the notification feed, other instances).
type EventPublisher interface {
	Publish(ctx context.Context, evt ChangeEvent)
}

// NewChangeEvent stamps a ChangeEvent with the current UTC time.
func NewChangeEvent(table, typ, id string, record interface{}) ChangeEvent {
	return ChangeEvent{Table: table, Type: typ, RecordID: id, Record: record, At: time.Now().UTC()}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ChangeEvent) {}

// NopPublisher drops every event.
var NopPublisher EventPublisher = nopPublisher{}

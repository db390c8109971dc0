package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// MaxNotifications is how many notifications the feed keeps.
const MaxNotifications = 10

// Tables the feed listens to.
var Tables = []string{core.TableSchedules, core.TableBells}

type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UserNotification is a Notification as seen by one user.
type UserNotification struct {
	Notification
	Read bool `json:"read"`
}

// Describe turns a change into a human readable title and message.
func Describe(evt core.ChangeEvent) (title, message string) {
	table := evt.Table
	singular := strings.TrimSuffix(table, "s")
	switch evt.Type {
	case core.ChangeInsert:
		return singular + " Created", "A new " + singular + " was added."
	case core.ChangeUpdate:
		return singular + " Updated", "A " + singular + " was modified."
	case core.ChangeDelete:
		return singular + " Deleted", "A " + singular + " was removed."
	default:
		return "System Update", "An item in " + table + " was updated."
	}
}

// Center keeps the latest notifications and, per user, how far they have read.
type Center struct {
	mu     sync.RWMutex
	seq    int64
	feed   []Notification // newest first
	readTo map[string]int64
}

func NewCenter() *Center {
	return &Center{
		feed:   make([]Notification, 0, MaxNotifications),
		readTo: make(map[string]int64),
	}
}

// Handle records evt when it concerns a watched table.
func (c *Center) Handle(evt core.ChangeEvent) {
	watched := false
	for _, t := range Tables {
		if evt.Table == t {
			watched = true
			break
		}
	}
	if !watched {
		return
	}

	title, msg := Describe(evt)
	ts := evt.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	n := Notification{ID: c.seq, Title: title, Message: msg, Timestamp: ts}
	c.feed = append([]Notification{n}, c.feed...)
	if len(c.feed) > MaxNotifications {
		c.feed = c.feed[:MaxNotifications]
	}
}

// Run consumes events until ctx is done or events is closed.
func (c *Center) Run(ctx context.Context, events <-chan core.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Handle(evt)
		}
	}
}

func (c *Center) List(userID string) []UserNotification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	readTo := c.readTo[userID]
	list := make([]UserNotification, 0, len(c.feed))
	for _, n := range c.feed {
		list = append(list, UserNotification{Notification: n, Read: n.ID <= readTo})
	}
	return list
}

func (c *Center) UnreadCount(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	readTo := c.readTo[userID]
	var count int
	for _, n := range c.feed {
		if n.ID > readTo {
			count++
		}
	}
	return count
}

func (c *Center) MarkAllRead(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTo[userID] = c.seq
}

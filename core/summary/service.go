package summary

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

type (
	UserLister interface {
		Query(ctx context.Context, filter *user.QueryFilter) ([]user.User, error)
	}

	BellLister interface {
		TodaysBells(ctx context.Context, day int) ([]schedule.DashboardBell, error)
	}

	summaryBell struct {
		Time         string
		Label        string
		ScheduleName string
	}

	summaryData struct {
		Name  string
		Date  string
		Bells []summaryBell
	}
)

// Mailer e-mails today's bells to every user who opted in.
type Mailer struct {
	users     UserLister
	bells     BellLister
	mailSvc   core.EmailService
	logger    core.Logger
	loc       *time.Location
	sendAtStr string
}

func NewMailer(conf *core.Config, users UserLister, bells BellLister, mailSvc core.EmailService, logger core.Logger) *Mailer {
	return &Mailer{
		users:     users,
		bells:     bells,
		mailSvc:   mailSvc,
		logger:    logger,
		loc:       conf.Location(),
		sendAtStr: conf.Bell.SummaryTime,
	}
}

// SendDaily sends the summary for the day of now and returns how many users were mailed.
func (m *Mailer) SendDaily(ctx context.Context, now time.Time) (int, error) {
	now = now.In(m.loc)
	active, enabled := true, true
	users, err := m.users.Query(ctx, &user.QueryFilter{IsActive: &active, EmailSummaryEnabled: &enabled})
	if err != nil {
		return 0, errors.Wrap(err, "querying users")
	}
	if len(users) == 0 {
		return 0, nil
	}

	bells, err := m.bells.TodaysBells(ctx, int(now.Weekday()))
	if err != nil {
		return 0, errors.Wrap(err, "querying today's bells")
	}
	rows := make([]summaryBell, 0, len(bells))
	for _, b := range bells {
		rows = append(rows, summaryBell{Time: b.BellTime, Label: b.BellLabel, ScheduleName: b.ScheduleName})
	}
	attachment, err := bellsCSV(rows)
	if err != nil {
		return 0, errors.Wrap(err, "writing bells csv")
	}

	date := now.Format("Monday, 02 January 2006")
	messages := make([]*core.EmailMessage, 0, len(users))
	for _, usr := range users {
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
			Subject:      "Today's bells: " + date,
			TemplateName: "daily_summary",
			TemplateData: summaryData{Name: usr.FullName(), Date: date, Bells: rows},
		}
		if len(rows) > 0 {
			if err := msg.Attach(bytes.NewReader(attachment), "bells-"+now.Format("2006-01-02")+".csv", "text/csv"); err != nil {
				return 0, errors.Wrap(err, "attaching bells csv")
			}
		}
		messages = append(messages, msg)
	}
	m.mailSvc.SendMessages(messages...)
	return len(messages), nil
}

func bellsCSV(rows []summaryBell) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"time", "label", "schedule"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Time, r.Label, r.ScheduleName}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// NextRun returns the first send time strictly after now.
func (m *Mailer) NextRun(now time.Time) (time.Time, error) {
	at, err := schedule.BellAt(m.sendAtStr, now.In(m.loc))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid summary time %q", m.sendAtStr)
	}
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// Run sends the summary every day until ctx is done.
func (m *Mailer) Run(ctx context.Context) error {
	for {
		next, err := m.NextRun(time.Now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case now := <-timer.C:
			n, err := m.SendDaily(ctx, now)
			if err != nil {
				m.logger.Error(fmt.Sprintf("daily summary: %v", err), err)
				continue
			}
			m.logger.Info(fmt.Sprintf("daily summary sent to %d users", n))
		}
	}
}

// Package report summarizes the most recent posting day for downstream notification.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/metrics"
	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Heading is the notification title.
const Heading = "Daily PERM Updates"

const (
	displayLayout   = "Jan 2, 2006"
	defaultPageSize = 500
)

// Notification lifecycle topics.
const (
	TopicSendingStart  = "notification-sending-start"
	TopicSendingDone   = "notification-sending-done"
	TopicSendingFailed = "notification-sending-failed"
)

// Notifier delivers a message to subscribers.
type Notifier interface {
	Send(ctx context.Context, heading, message string) (string, error)
}

// Observation is derived on demand from the case table.
type Observation struct {
	PostingDay     *time.Time `json:"posting_day,omitempty"`
	Records        int        `json:"records"`
	EarliestFiling *time.Time `json:"earliest_filing,omitempty"`
	LatestFiling   *time.Time `json:"latest_filing,omitempty"`
}

// Message renders the notification body.
func (o Observation) Message() string {
	if o.Records == 0 {
		return "0 records processed."
	}
	msg := fmt.Sprintf("%d records processed.", o.Records)
	if o.EarliestFiling != nil && o.LatestFiling != nil {
		msg += fmt.Sprintf(" Earliest is %s and latest is %s",
			o.EarliestFiling.Format(displayLayout), o.LatestFiling.Format(displayLayout))
	}
	return msg
}

// Options configures a Reporter.
type Options struct {
	Location  *time.Location
	Notifier  Notifier
	Publisher perm.Publisher
	PageSize  int
	Logger    *zap.Logger
}

// Reporter computes observations and sends notifications.
type Reporter struct {
	cases  perm.CaseRepository
	opts   Options
	logger *zap.Logger
}

// New constructs a Reporter.
func New(cases perm.CaseRepository, opts Options) (*Reporter, error) {
	if cases == nil {
		return nil, errors.New("case repository is required")
	}
	if opts.Location == nil {
		loc, err := perm.LoadLocation("")
		if err != nil {
			return nil, err
		}
		opts.Location = loc
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{cases: cases, opts: opts, logger: logger}, nil
}

// Observe counts the cases on the most recent posting day and finds the range of
// filing dates encoded in their case numbers. An empty table yields a zero Observation.
func (r *Reporter) Observe(ctx context.Context) (Observation, error) {
	latest, err := r.cases.LatestPostingDate(ctx)
	if errors.Is(err, perm.ErrNotFound) {
		return Observation{}, nil
	}
	if err != nil {
		return Observation{}, fmt.Errorf("latest posting date: %w", err)
	}

	day := perm.StartOfDay(latest, r.opts.Location)
	next := day.AddDate(0, 0, 1)
	filter := perm.CaseFilter{PostedFrom: &day, PostedTo: &next}

	count, err := r.cases.CountCases(ctx, filter)
	if err != nil {
		return Observation{}, fmt.Errorf("count cases: %w", err)
	}
	obs := Observation{PostingDay: &day, Records: count}

	for offset := 0; offset < count; offset += r.opts.PageSize {
		batch, err := r.cases.ListCases(ctx, filter, r.opts.PageSize, offset)
		if err != nil {
			return Observation{}, fmt.Errorf("list cases: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, c := range batch {
			filed, err := c.FilingDate(r.opts.Location)
			if err != nil {
				r.logger.Warn("skip case with undecodable number", zap.String("case_number", c.CaseNumber), zap.Error(err))
				continue
			}
			if obs.EarliestFiling == nil || filed.Before(*obs.EarliestFiling) {
				f := filed
				obs.EarliestFiling = &f
			}
			if obs.LatestFiling == nil || filed.After(*obs.LatestFiling) {
				f := filed
				obs.LatestFiling = &f
			}
		}
	}
	return obs, nil
}

// Notify observes and pushes one notification. Nothing is sent when there are no records.
func (r *Reporter) Notify(ctx context.Context) (Observation, error) {
	if r.opts.Notifier == nil {
		return Observation{}, errors.New("notifier is not configured")
	}
	obs, err := r.Observe(ctx)
	if err != nil {
		return Observation{}, err
	}
	if obs.Records == 0 {
		r.logger.Info("no records to report, notification skipped")
		metrics.ObserveNotification("skipped")
		return obs, nil
	}

	message := obs.Message()
	r.publish(ctx, TopicSendingStart, obs, nil)
	id, err := r.opts.Notifier.Send(ctx, Heading, message)
	if err != nil {
		metrics.ObserveNotification("failure")
		r.publish(ctx, TopicSendingFailed, obs, err)
		return obs, fmt.Errorf("notify: %w", err)
	}
	metrics.ObserveNotification("success")
	r.publish(ctx, TopicSendingDone, obs, nil)
	r.logger.Info("notification sent", zap.String("notification_id", id), zap.String("message", message))
	return obs, nil
}

type notificationEvent struct {
	Records int    `json:"records"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (r *Reporter) publish(ctx context.Context, topic string, obs Observation, sendErr error) {
	if r.opts.Publisher == nil {
		return
	}
	payload := notificationEvent{Records: obs.Records, Message: obs.Message()}
	if sendErr != nil {
		payload.Error = sendErr.Error()
	}
	if _, err := r.opts.Publisher.Publish(ctx, topic, payload); err != nil {
		r.logger.Warn("publish notification event failed", zap.String("topic", topic), zap.Error(err))
	}
}

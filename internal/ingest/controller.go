// Package ingest drives date, range and latest crawls of the source grid.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/clock/system"
	"github.com/JakeFAU/perm-crawler/internal/metrics"
	"github.com/JakeFAU/perm-crawler/internal/perm"
)

const (
	dayLayout  = "2006-01-02"
	tracerName = "github.com/JakeFAU/perm-crawler/internal/ingest"
)

// PageFetcher retrieves one validated page of one posting day.
type PageFetcher interface {
	Fetch(ctx context.Context, date time.Time, page int) (perm.PageResult, error)
}

// Normalizer maps a raw row to a typed record.
type Normalizer interface {
	Normalize(row perm.RawRow) (perm.NormalizedRecord, error)
}

// Upserter persists a normalized record idempotently.
type Upserter interface {
	Apply(ctx context.Context, rec perm.NormalizedRecord) (perm.UpsertOutcome, error)
}

// Limiter paces page requests.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Options holds the optional collaborators of a Controller.
type Options struct {
	Location *time.Location
	Clock    perm.Clock
	IDs      perm.IDGenerator

	Limiter  Limiter
	LimitKey string

	Archive       perm.BlobStore
	ArchivePrefix string

	Publisher perm.Publisher

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
	// OnState, when set, is called with every state transition in order.
	OnState func(State)

	Logger *zap.Logger
}

// Controller runs crawls sequentially. It is safe to query State concurrently,
// but crawls must not overlap.
type Controller struct {
	fetcher    PageFetcher
	normalizer Normalizer
	upserter   Upserter
	opts       Options
	logger     *zap.Logger

	mu    sync.Mutex
	state State
}

// New constructs a Controller.
func New(fetcher PageFetcher, normalizer Normalizer, upserter Upserter, opts Options) (*Controller, error) {
	if fetcher == nil || normalizer == nil || upserter == nil {
		return nil, errors.New("fetcher, normalizer and upserter are required")
	}
	if opts.Location == nil {
		loc, err := perm.LoadLocation("")
		if err != nil {
			return nil, err
		}
		opts.Location = loc
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:    fetcher,
		normalizer: normalizer,
		upserter:   upserter,
		opts:       opts,
		logger:     logger,
		state:      StateIdle,
	}, nil
}

// State reports the current step of the state machine. Between runs it is
// StateIdle; the outcome of a finished date lives in its DateSummary.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// finish moves a terminal state back to idle.
func (c *Controller) finish(final State) {
	c.setState(final)
	c.setState(StateIdle)
}

// RunLatest crawls yesterday in the source timezone.
func (c *Controller) RunLatest(ctx context.Context) (DateSummary, error) {
	return c.RunDate(ctx, perm.Yesterday(c.opts.Clock.Now(), c.opts.Location))
}

// RunBetween crawls every calendar day in [from, to). A failed date is logged and
// recorded in the summary; the range continues. Cancellation is checked between dates.
func (c *Controller) RunBetween(ctx context.Context, from, to time.Time) (RangeSummary, error) {
	loc := c.opts.Location
	from, to = perm.StartOfDay(from, loc), perm.StartOfDay(to, loc)
	summary := RangeSummary{From: from, To: to}
	if to.Before(from) {
		return summary, fmt.Errorf("range end %s is before start %s", to.Format(dayLayout), from.Format(dayLayout))
	}

	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			c.finish(StateFailed)
			return summary, fmt.Errorf("range crawl canceled before %s: %w", day.Format(dayLayout), err)
		}
		ds, err := c.runDate(ctx, day)
		if err != nil {
			c.logger.Error("date crawl failed, continuing with next date",
				zap.String("date", day.Format(dayLayout)),
				zap.Error(err),
			)
		}
		summary.Dates = append(summary.Dates, ds)
		c.setState(StateAdvancingDate)
	}
	c.finish(StateDone)
	return summary, nil
}

// RunDate crawls every page of one posting day. The first fetch, normalize or
// storage error aborts the date; rows applied before it stay persisted.
func (c *Controller) RunDate(ctx context.Context, date time.Time) (DateSummary, error) {
	summary, err := c.runDate(ctx, date)
	c.setState(StateIdle)
	return summary, err
}

func (c *Controller) runDate(ctx context.Context, date time.Time) (DateSummary, error) {
	date = perm.StartOfDay(date, c.opts.Location)
	started := time.Now()
	summary := DateSummary{Date: date, RunID: c.newRunID()}
	logger := c.logger.With(zap.String("date", date.Format(dayLayout)), zap.String("run_id", summary.RunID))

	ctx, span := c.opts.Tracer.Start(ctx, "crawl.date", trace.WithAttributes(
		attribute.String("perm.date", date.Format(dayLayout)),
		attribute.String("perm.run_id", summary.RunID),
	))
	defer span.End()

	logger.Info("date crawl started")
	c.publish(ctx, logger, TopicStarted, summary)

	err := c.crawlPages(ctx, logger, &summary)
	summary.Duration = time.Since(started)
	if err != nil {
		summary.Err = err
		summary.State = StateFailed
		c.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "date crawl failed")
		metrics.ObserveDate("failure")
		c.publish(ctx, logger, TopicFailed, summary)
		return summary, fmt.Errorf("crawl %s: %w", date.Format(dayLayout), err)
	}

	summary.State = StateDone
	c.setState(StateDone)
	span.SetAttributes(attribute.Int("perm.pages", summary.Pages), attribute.Int("perm.records", summary.Records))
	metrics.ObserveDate("success")
	logger.Info("date crawl finished",
		zap.Int("pages", summary.Pages),
		zap.Int("records", summary.Records),
		zap.Int("cases_created", summary.CasesCreated),
		zap.Int("cases_existing", summary.CasesExisting),
		zap.Duration("duration", summary.Duration),
	)
	c.publish(ctx, logger, TopicDone, summary)
	return summary, nil
}

func (c *Controller) crawlPages(ctx context.Context, logger *zap.Logger, summary *DateSummary) error {
	for page := 1; ; page++ {
		c.setState(StateFetchingPage)
		result, err := c.fetchPage(ctx, summary.Date, page)
		if err != nil {
			return err
		}
		summary.Pages++
		summary.Records = result.Records
		logger.Info("page fetched",
			zap.Int("page", page),
			zap.Int("total_pages", result.TotalPages),
			zap.Int("records", result.Records),
		)
		c.archive(ctx, logger, summary.RunID, summary.Date, page, result.Raw)

		for _, row := range result.Rows {
			c.setState(StateNormalizing)
			rec, err := c.normalizer.Normalize(row)
			if err != nil {
				return fmt.Errorf("normalize row on page %d: %w", page, err)
			}
			c.setState(StateUpserting)
			out, err := c.upserter.Apply(ctx, rec)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", rec.Case.CaseNumber, err)
			}
			summary.Rows++
			if out.EmployerCreated {
				summary.EmployersCreated++
			}
			if out.CaseCreated {
				summary.CasesCreated++
			} else {
				summary.CasesExisting++
			}
			metrics.ObserveUpsert(out.EmployerCreated, out.CaseCreated)
		}

		// Our own page counter bounds the loop even if the grid echoes a stale PAGE.
		if result.CurrentPage >= result.TotalPages || page >= result.TotalPages {
			return nil
		}
		c.setState(StateAdvancingPage)
	}
}

func (c *Controller) fetchPage(ctx context.Context, date time.Time, page int) (perm.PageResult, error) {
	ctx, span := c.opts.Tracer.Start(ctx, "crawl.page", trace.WithAttributes(attribute.Int("perm.page", page)))
	defer span.End()

	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx, c.opts.LimitKey); err != nil {
			return perm.PageResult{}, err
		}
	}
	start := time.Now()
	result, err := c.fetcher.Fetch(ctx, date, page)
	switch {
	case errors.Is(err, perm.ErrEmptyPage):
		metrics.ObservePage("empty", time.Since(start))
	case err != nil:
		metrics.ObservePage("error", time.Since(start))
	default:
		metrics.ObservePage("ok", time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page fetch failed")
		return perm.PageResult{}, fmt.Errorf("page %d: %w", page, err)
	}
	span.SetAttributes(attribute.Int("perm.total_pages", result.TotalPages))
	return result, nil
}

func (c *Controller) archive(ctx context.Context, logger *zap.Logger, runID string, date time.Time, page int, raw []byte) {
	if c.opts.Archive == nil || len(raw) == 0 {
		return
	}
	key := archivePath(c.opts.ArchivePrefix, runID, date, page)
	uri, err := c.opts.Archive.PutObject(ctx, key, "application/json", bytes.NewReader(raw))
	if err != nil {
		logger.Warn("archive page failed", zap.Int("page", page), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.Int("page", page), zap.String("uri", uri))
}

func archivePath(prefix, runID string, date time.Time, page int) string {
	name := fmt.Sprintf("page-%04d.json", page)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(date.Format(dayLayout), runID, name)
	}
	return path.Join(prefix, date.Format(dayLayout), runID, name)
}

func (c *Controller) publish(ctx context.Context, logger *zap.Logger, topic string, s DateSummary) {
	if c.opts.Publisher == nil {
		return
	}
	payload := event{
		RunID:        s.RunID,
		Date:         s.Date.Format(dayLayout),
		Pages:        s.Pages,
		Records:      s.Records,
		CasesCreated: s.CasesCreated,
		At:           c.opts.Clock.Now().UTC(),
	}
	if s.Err != nil {
		payload.Error = s.Err.Error()
	}
	if _, err := c.opts.Publisher.Publish(ctx, topic, payload); err != nil {
		logger.Warn("publish crawl event failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (c *Controller) newRunID() string {
	if c.opts.IDs == nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	id, err := c.opts.IDs.NewID()
	if err != nil {
		c.logger.Warn("generate run id failed", zap.Error(err))
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}

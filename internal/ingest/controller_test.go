package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/clock/system"
	"github.com/JakeFAU/perm-crawler/internal/cookie"
	"github.com/JakeFAU/perm-crawler/internal/normalize"
	"github.com/JakeFAU/perm-crawler/internal/perm"
	pubmemory "github.com/JakeFAU/perm-crawler/internal/publisher/memory"
	"github.com/JakeFAU/perm-crawler/internal/storage/memory"
	"github.com/JakeFAU/perm-crawler/internal/upsert"
)

type fetchCall struct {
	date time.Time
	page int
}

// fakeGrid serves pages keyed by day; each day has a fixed number of pages
// with one row per page.
type fakeGrid struct {
	loc     *time.Location
	pages   map[string]int
	errs    map[string]error
	rows    map[string][]perm.RawRow
	cookies *cookie.Store
	calls   []fetchCall
}

func (g *fakeGrid) Fetch(ctx context.Context, date time.Time, page int) (perm.PageResult, error) {
	if g.cookies != nil {
		if _, err := g.cookies.Latest(ctx); err != nil {
			return perm.PageResult{}, err
		}
	}
	g.calls = append(g.calls, fetchCall{date: date, page: page})
	day := date.In(g.loc).Format(dayLayout)
	if err := g.errs[day]; err != nil {
		return perm.PageResult{}, err
	}
	if rows, ok := g.rows[day]; ok {
		return perm.PageResult{Rows: rows, CurrentPage: 1, TotalPages: 1, Records: len(rows), Raw: []byte(`{}`)}, nil
	}
	total := g.pages[day]
	if total == 0 {
		return perm.PageResult{}, perm.ErrEmptyPage
	}
	caseNumber := fmt.Sprintf("A-17%04d-%05d", date.In(g.loc).YearDay(), page)
	return perm.PageResult{
		Rows:        []perm.RawRow{gridRow(caseNumber, "ACME CORP", date.In(g.loc).Format(perm.SourceDateLayout))},
		CurrentPage: page,
		TotalPages:  total,
		Records:     total,
		Raw:         []byte(fmt.Sprintf(`{"PAGE":%d}`, page)),
	}, nil
}

func gridRow(caseNumber, employer, posted string) perm.RawRow {
	return perm.RawRow{
		json.Number("1"), caseNumber, posted, "PERM", "Certified", employer,
		"", "", "Engineer", "CA", json.Number("6"), "", "",
	}
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

type harness struct {
	ctrl    *Controller
	states  *stateLog
	spans   *tracetest.SpanRecorder
	grid    *fakeGrid
	store   *memory.Store
	cookies *cookie.Store
	blobs   *memory.BlobStore
	pub     *pubmemory.Publisher
	loc     *time.Location
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	loc, err := perm.LoadLocation("")
	require.NoError(t, err)

	store := memory.NewStore()
	cookies := cookie.NewStore(store)
	grid := &fakeGrid{loc: loc, pages: map[string]int{}, errs: map[string]error{}, rows: map[string][]perm.RawRow{}, cookies: cookies}
	norm, err := normalize.New(loc)
	require.NoError(t, err)
	blobs := memory.NewBlobStore()
	pub := pubmemory.New()
	states := &stateLog{}
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctrl, err := New(grid, norm, upsert.New(store, store, zap.NewNop()), Options{
		Location:      loc,
		Clock:         system.Fixed{At: now},
		IDs:           &seqIDs{},
		Archive:       blobs,
		ArchivePrefix: "raw",
		Publisher:     pub,
		Tracer:        tp.Tracer("ingest-test"),
		OnState:       states.record,
		Logger:        zap.NewNop(),
	})
	require.NoError(t, err)
	return &harness{ctrl: ctrl, states: states, spans: spans, grid: grid, store: store, cookies: cookies, blobs: blobs, pub: pub, loc: loc}
}

func (h *harness) withCookie(t *testing.T) *harness {
	t.Helper()
	_, err := h.cookies.Save(context.Background(), "CFID=1; CFTOKEN=2;")
	require.NoError(t, err)
	return h
}

func (h *harness) day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, h.loc)
}

func TestRunDateFetchesEveryPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	day := h.day(2017, time.October, 5)
	h.grid.pages["2017-10-05"] = 3

	summary, err := h.ctrl.RunDate(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, h.grid.calls, 3)
	for i, call := range h.grid.calls {
		require.Equal(t, i+1, call.page)
		require.True(t, call.date.Equal(day))
	}
	require.Equal(t, 3, summary.Pages)
	require.Equal(t, 3, summary.CasesCreated)
	require.Equal(t, 1, summary.EmployersCreated)
	require.Equal(t, StateDone, summary.State)
	require.Equal(t, StateIdle, h.ctrl.State())
	states := h.states.all()
	require.Equal(t, StateFetchingPage, states[0])
	require.Equal(t, []State{StateDone, StateIdle}, states[len(states)-2:])
	require.Equal(t, 3, h.store.CaseCount())
	require.Equal(t, 1, h.store.EmployerCount())

	require.ElementsMatch(t, []string{
		"raw/2017-10-05/run-1/page-0001.json",
		"raw/2017-10-05/run-1/page-0002.json",
		"raw/2017-10-05/run-1/page-0003.json",
	}, h.blobs.Paths())
	require.Equal(t, []string{TopicStarted, TopicDone}, h.pub.Topics())
}

func TestRunDateIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	day := h.day(2017, time.October, 5)
	h.grid.pages["2017-10-05"] = 2

	_, err := h.ctrl.RunDate(context.Background(), day)
	require.NoError(t, err)
	second, err := h.ctrl.RunDate(context.Background(), day)
	require.NoError(t, err)

	require.Zero(t, second.CasesCreated)
	require.Equal(t, 2, second.CasesExisting)
	require.Equal(t, 2, h.store.CaseCount())
	require.Equal(t, 1, h.store.EmployerCount())
}

func TestRunDateRejectsBlankEmployer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.rows["2017-10-05"] = []perm.RawRow{gridRow("A-170278-00001", "", "10/05/2017")}

	summary, err := h.ctrl.RunDate(context.Background(), h.day(2017, time.October, 5))
	require.ErrorIs(t, err, perm.ErrEmptyEmployerName)
	require.Equal(t, StateFailed, summary.State)
	require.Zero(t, h.store.CaseCount())
	require.Zero(t, h.store.EmployerCount())
	require.Equal(t, []string{TopicStarted, TopicFailed}, h.pub.Topics())
}

func TestRunDateAbortsOnFirstBadRow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.rows["2017-10-05"] = []perm.RawRow{
		gridRow("A-170278-00001", "ACME CORP", "10/05/2017"),
		gridRow("A-170278-00002", "", "10/05/2017"),
		gridRow("A-170278-00003", "ACME CORP", "10/05/2017"),
	}

	_, err := h.ctrl.RunDate(context.Background(), h.day(2017, time.October, 5))
	require.ErrorIs(t, err, perm.ErrEmptyEmployerName)
	require.Equal(t, 1, h.store.CaseCount())
}

func TestRunBetweenContinuesPastFailedDate(t *testing.T) {
	t.Parallel()

	// Five days; the second one has no records. Days 1, 3, 4 and 5 are still crawled.
	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.pages["2017-10-05"] = 1
	h.grid.pages["2017-10-07"] = 2
	h.grid.pages["2017-10-08"] = 1
	h.grid.pages["2017-10-09"] = 1

	summary, err := h.ctrl.RunBetween(context.Background(), h.day(2017, time.October, 5), h.day(2017, time.October, 10))
	require.NoError(t, err)
	require.Len(t, summary.Dates, 5)

	failed := summary.Failed()
	require.Len(t, failed, 1)
	require.True(t, failed[0].Date.Equal(h.day(2017, time.October, 6)))
	require.ErrorIs(t, failed[0].Err, perm.ErrEmptyPage)

	attempted := map[string]bool{}
	for _, c := range h.grid.calls {
		attempted[c.date.Format(dayLayout)] = true
	}
	for _, d := range []string{"2017-10-05", "2017-10-06", "2017-10-07", "2017-10-08", "2017-10-09"} {
		require.True(t, attempted[d], "date %s was not attempted", d)
	}
	for i, d := range summary.Dates {
		if i == 1 {
			require.Equal(t, StateFailed, d.State)
			continue
		}
		require.Equal(t, StateDone, d.State)
	}

	require.Equal(t, 5, summary.CasesCreated())
	require.Equal(t, 5, h.store.CaseCount())
	require.Equal(t, StateIdle, h.ctrl.State())
	states := h.states.all()
	require.Contains(t, states, StateAdvancingDate)
	require.Equal(t, []State{StateAdvancingDate, StateDone, StateIdle}, states[len(states)-3:])
}

func TestRunBetweenExcludesEndDate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.pages["2017-10-05"] = 1
	h.grid.pages["2017-10-06"] = 1

	summary, err := h.ctrl.RunBetween(context.Background(), h.day(2017, time.October, 5), h.day(2017, time.October, 6))
	require.NoError(t, err)
	require.Len(t, summary.Dates, 1)
	require.Len(t, h.grid.calls, 1)

	empty, err := h.ctrl.RunBetween(context.Background(), h.day(2017, time.October, 6), h.day(2017, time.October, 6))
	require.NoError(t, err)
	require.Empty(t, empty.Dates)

	_, err = h.ctrl.RunBetween(context.Background(), h.day(2017, time.October, 6), h.day(2017, time.October, 5))
	require.Error(t, err)
}

func TestRunBetweenSpansDaylightSavingChange(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	for _, d := range []string{"2017-11-04", "2017-11-05", "2017-11-06"} {
		h.grid.pages[d] = 1
	}

	summary, err := h.ctrl.RunBetween(context.Background(), h.day(2017, time.November, 4), h.day(2017, time.November, 7))
	require.NoError(t, err)
	require.Len(t, summary.Dates, 3)
	require.Empty(t, summary.Failed())
	for _, d := range summary.Dates {
		require.Zero(t, d.Date.Hour())
	}
}

func TestRunBetweenStopsWhenCanceled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.ctrl.RunBetween(ctx, h.day(2017, time.October, 5), h.day(2017, time.October, 8))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, summary.Dates)
	require.Empty(t, h.grid.calls)
}

func TestRunLatestCrawlsYesterdayInSourceZone(t *testing.T) {
	t.Parallel()

	// 2017-10-06 05:00 UTC is 2017-10-05 22:00 in Los Angeles, so yesterday is Oct 4.
	h := newHarness(t, time.Date(2017, time.October, 6, 5, 0, 0, 0, time.UTC)).withCookie(t)
	h.grid.pages["2017-10-04"] = 1

	summary, err := h.ctrl.RunLatest(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Date.Equal(h.day(2017, time.October, 4)))
	require.Equal(t, 1, h.store.CaseCount())
}

func TestRunLatestWithoutCookieCreatesNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Date(2017, time.October, 6, 18, 0, 0, 0, time.UTC))
	h.grid.pages["2017-10-05"] = 2

	_, err := h.ctrl.RunLatest(context.Background())
	require.ErrorIs(t, err, perm.ErrNoCookieAvailable)
	require.Empty(t, h.grid.calls)
	require.Zero(t, h.store.CaseCount())
	require.Zero(t, h.store.EmployerCount())
	require.Equal(t, StateIdle, h.ctrl.State())
	require.Equal(t, []State{StateFetchingPage, StateFailed, StateIdle}, h.states.all())
}

func TestSideChannelFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.pages["2017-10-05"] = 1
	h.pub.FailWith(errors.New("topic missing"))

	_, err := h.ctrl.RunDate(context.Background(), h.day(2017, time.October, 5))
	require.NoError(t, err)
	require.Equal(t, 1, h.store.CaseCount())
}

type countingLimiter struct {
	keys []string
	err  error
}

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return l.err
}

func TestLimiterGatesEveryPage(t *testing.T) {
	t.Parallel()

	loc, err := perm.LoadLocation("")
	require.NoError(t, err)
	store := memory.NewStore()
	grid := &fakeGrid{loc: loc, pages: map[string]int{"2017-10-05": 2}}
	norm, err := normalize.New(loc)
	require.NoError(t, err)
	limiter := &countingLimiter{}

	ctrl, err := New(grid, norm, upsert.New(store, store, nil), Options{
		Location: loc,
		Limiter:  limiter,
		LimitKey: "https://lcr-pjr.doleta.gov/index.cfm",
	})
	require.NoError(t, err)

	_, err = ctrl.RunDate(context.Background(), time.Date(2017, time.October, 5, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Len(t, limiter.keys, 2)
	require.Equal(t, "https://lcr-pjr.doleta.gov/index.cfm", limiter.keys[0])

	limiter.err = context.DeadlineExceeded
	_, err = ctrl.RunDate(context.Background(), time.Date(2017, time.October, 5, 0, 0, 0, 0, loc))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	day := time.Date(2017, time.October, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2017-10-05/r1/page-0012.json", archivePath("", "r1", day, 12))
	require.Equal(t, "pages/2017-10-05/r1/page-0001.json", archivePath("/pages/", "r1", day, 1))
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, Options{})
	require.Error(t, err)
}

func TestRunDateRecordsSpans(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Now()).withCookie(t)
	h.grid.pages["2017-10-05"] = 2

	_, err := h.ctrl.RunDate(context.Background(), h.day(2017, time.October, 5))
	require.NoError(t, err)
	_, err = h.ctrl.RunDate(context.Background(), h.day(2017, time.October, 6))
	require.ErrorIs(t, err, perm.ErrEmptyPage)

	var dates, pages []sdktrace.ReadOnlySpan
	for _, s := range h.spans.Ended() {
		switch s.Name() {
		case "crawl.date":
			dates = append(dates, s)
		case "crawl.page":
			pages = append(pages, s)
		}
	}
	require.Len(t, dates, 2)
	require.Len(t, pages, 3)

	ok := dates[0].SpanContext()
	for _, p := range pages[:2] {
		require.Equal(t, ok.TraceID(), p.Parent().TraceID())
		require.Equal(t, ok.SpanID(), p.Parent().SpanID())
	}
	require.Equal(t, codes.Unset, dates[0].Status().Code)
	require.Equal(t, codes.Error, dates[1].Status().Code)
	require.Equal(t, codes.Error, pages[2].Status().Code)
}

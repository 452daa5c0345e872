package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/museumfetch/internal/fetcher"
	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/parser"
	"github.com/IshaanNene/museumfetch/internal/types"
)

// State represents the collector's current lifecycle state.
type State int32

const (
	StateIdle            State = 0
	StateFetchingList    State = 1
	StateExtractingList  State = 2
	StateFetchingDetails State = 3
	StateDone            State = 4
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingList:
		return "fetching_list"
	case StateExtractingList:
		return "extracting_list"
	case StateFetchingDetails:
		return "fetching_details"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Options tunes a collection run.
type Options struct {
	// Workers bounds the number of detail tasks in flight.
	Workers int

	// DedupeCities fetches each distinct city page once and shares the
	// result between every museum in that city.
	DedupeCities bool
}

// Stats summarizes a finished run.
type Stats struct {
	Museums      int
	MuseumTasks  int64
	CityTasks    int64
	FailedTasks  int64
	SkippedTasks int64
	Duration     time.Duration
}

// Collector runs one collection: the list page, then every museum and city
// page concurrently, and returns the merged records. A Collector is single
// use.
type Collector struct {
	fetcher fetcher.PageFetcher
	list    *parser.ListExtractor
	museums *parser.MuseumExtractor
	cities  *parser.CityExtractor
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger

	state   atomic.Int32
	started time.Time
	elapsed atomic.Int64

	museumCount  atomic.Int64
	museumTasks  atomic.Int64
	cityTasks    atomic.Int64
	failedTasks  atomic.Int64
	skippedTasks atomic.Int64
}

// New creates a Collector reading pages through f.
func New(f fetcher.PageFetcher, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Collector {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &Collector{
		fetcher: f,
		list:    parser.NewListExtractor(logger),
		museums: parser.NewMuseumExtractor(logger),
		cities:  parser.NewCityExtractor(logger),
		opts:    opts,
		metrics: metrics,
		logger:  logger.With("component", "collector"),
	}
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	return State(c.state.Load())
}

// Collect fetches and extracts pageTitle, then enriches every record with
// its museum attributes and city details. Failures before the detail phase
// are returned; detail failures are logged and leave the affected field
// unset. Records are returned sorted by name.
func (c *Collector) Collect(ctx context.Context, pageTitle string) ([]*types.MuseumRecord, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateFetchingList)) {
		return nil, fmt.Errorf("%w (state %s)", types.ErrCollectorUsed, c.State())
	}
	defer c.state.Store(int32(StateDone))

	c.started = time.Now()
	defer func() { c.elapsed.Store(int64(time.Since(c.started))) }()
	c.logger.Info("collection starting",
		"page", pageTitle,
		"workers", c.opts.Workers,
		"dedupe_cities", c.opts.DedupeCities,
	)

	listHTML, err := c.fetcher.FetchPage(ctx, pageTitle)
	if err != nil {
		return nil, fmt.Errorf("fetch list page: %w", err)
	}

	c.state.Store(int32(StateExtractingList))
	byName, err := c.list.Extract(pageTitle, listHTML)
	if err != nil {
		return nil, fmt.Errorf("extract list page: %w", err)
	}
	records := sortedRecords(byName)
	c.museumCount.Store(int64(len(records)))
	c.metrics.MuseumsExtracted.Add(int64(len(records)))
	c.logger.Info("museum list extracted", "museums", len(records))

	if len(records) == 0 {
		return records, nil
	}

	c.state.Store(int32(StateFetchingDetails))
	c.fetchDetails(ctx, records)

	c.logger.Info("collection complete",
		"museums", len(records),
		"museum_tasks", c.museumTasks.Load(),
		"city_tasks", c.cityTasks.Load(),
		"failed_tasks", c.failedTasks.Load(),
		"skipped_tasks", c.skippedTasks.Load(),
		"duration", time.Since(c.started),
	)
	return records, nil
}

// fetchDetails submits museum tasks, then city tasks, to a bounded pool and
// waits for all of them.
func (c *Collector) fetchDetails(ctx context.Context, records []*types.MuseumRecord) {
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)

	submit := func(kind, title string, task func() error) bool {
		if ctx.Err() != nil {
			c.skippedTasks.Add(1)
			return false
		}
		g.Go(func() error {
			c.isolate(kind, title, task)
			return nil
		})
		return true
	}

	stopped := false
	for _, rec := range records {
		rec := rec
		c.museumTasks.Add(1)
		if !submit("museum", rec.MuseumPageTitle, func() error { return c.museumTask(ctx, rec) }) {
			stopped = true
		}
	}

	for _, group := range cityGroups(records, c.opts.DedupeCities) {
		group := group
		title := group[0].CityPageTitle
		c.cityTasks.Add(1)
		if !submit("city", title, func() error { return c.cityTask(ctx, title, group) }) {
			stopped = true
		}
	}

	if stopped {
		c.logger.Warn("collection interrupted, remaining detail tasks not submitted",
			"skipped", c.skippedTasks.Load(),
			"error", ctx.Err(),
		)
	}

	// Tasks never return an error; Wait is only the barrier.
	_ = g.Wait()
}

// isolate runs task so that neither an error nor a panic escapes it.
func (c *Collector) isolate(kind, title string, task func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.failedTasks.Add(1)
			c.metrics.DetailFailures.Add(1)
			c.logger.Error("detail task panicked", "kind", kind, "title", title, "panic", r)
		}
	}()

	if err := task(); err != nil {
		c.failedTasks.Add(1)
		c.metrics.DetailFailures.Add(1)
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		c.logger.Log(context.Background(), level, "detail task failed", "kind", kind, "title", title, "error", err)
	}
}

func (c *Collector) museumTask(ctx context.Context, rec *types.MuseumRecord) error {
	if !types.IsAvailable(rec.MuseumPageTitle) {
		return fmt.Errorf("museum %q has no page link", rec.Name)
	}
	html, err := c.fetcher.FetchPage(ctx, rec.MuseumPageTitle)
	if err != nil {
		return err
	}
	attrs, err := c.museums.Extract(rec.MuseumPageTitle, html)
	if err != nil {
		return err
	}
	rec.Attributes = attrs
	return nil
}

func (c *Collector) cityTask(ctx context.Context, title string, group []*types.MuseumRecord) error {
	html, err := c.fetcher.FetchPage(ctx, title)
	if err != nil {
		return err
	}
	city, err := c.cities.Extract(title, html)
	if err != nil {
		return err
	}
	for _, rec := range group {
		rec.CityDetails = city
	}
	return nil
}

// Stats returns the counters of the run so far.
func (c *Collector) Stats() Stats {
	return Stats{
		Museums:      int(c.museumCount.Load()),
		MuseumTasks:  c.museumTasks.Load(),
		CityTasks:    c.cityTasks.Load(),
		FailedTasks:  c.failedTasks.Load(),
		SkippedTasks: c.skippedTasks.Load(),
		Duration:     time.Duration(c.elapsed.Load()),
	}
}

func sortedRecords(byName map[string]*types.MuseumRecord) []*types.MuseumRecord {
	records := make([]*types.MuseumRecord, 0, len(byName))
	for _, rec := range byName {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

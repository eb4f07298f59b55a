// Package pipeline orchestrates a research run: fan out to the active
// sources in parallel, then reduce the raw items through date filtering,
// scoring, sorting and two dedupe passes into a ResultSet.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/dedupe"
	"litscout/internal/fetch"
	"litscout/internal/logger"
	"litscout/internal/scoring"
	"litscout/internal/sources"
)

const (
	defaultConcurrency = 5
	defaultWindowDays  = 30
)

// reportOrder fixes the concatenation order feeding cross-source dedupe, so
// ties between equal-priority sources resolve the same way on every run.
var reportOrder = []core.Source{
	core.SourceOpenAlex,
	core.SourceSemanticScholar,
	core.SourceBiorxiv,
	core.SourceMedrxiv,
	core.SourceArxiv,
	core.SourcePubmed,
	core.SourceHuggingFace,
}

// Stage identifies a progress phase reported while a run executes.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
	StageProcessing Stage = "processing"
	StageComplete   Stage = "complete"
)

// ProgressEvent is emitted as sources start and finish. Source is empty for
// the pipeline-wide processing and complete stages. Events arrive from
// multiple goroutines; handlers must be safe for concurrent calls.
type ProgressEvent struct {
	Source core.Source
	Stage  Stage
	Count  int
	Err    string
}

// ProgressFunc receives progress events. May be nil.
type ProgressFunc func(ProgressEvent)

// Options configures a single research run.
type Options struct {
	Selector       string     // "all", "preprints", or one source name
	Depth          core.Depth // defaults to DepthDefault
	From, To       string     // ISO dates; derived from the 30-day window when empty
	MaxConcurrency int        // parallel source fetches, defaults to 5
	Progress       ProgressFunc
}

func (o Options) emit(ev ProgressEvent) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

// Runner executes research runs against a fixed set of credentials and a
// shared HTTP client. A Runner is safe for concurrent use.
type Runner struct {
	opts sources.Options
}

// New creates a Runner. A nil client in opts is replaced with the default.
func New(opts sources.Options) *Runner {
	if opts.Client == nil {
		opts.Client = fetch.New()
	}
	return &Runner{opts: opts}
}

// Run executes the full pipeline for a topic and returns the ResultSet.
// Failures never abort the run as a whole: each source's error lands in
// ResultSet.Errors next to whatever items it still delivered.
func (r *Runner) Run(ctx context.Context, topic string, opts Options) *core.ResultSet {
	active := sources.ExpandSources(opts.Selector)

	srcOpts := r.opts
	if containsSource(active, core.SourceOpenAlex) {
		srcOpts.TopicIDs = sources.DiscoverTopics(ctx, srcOpts.Client, topic, srcOpts.Contact)
	}

	return r.execute(ctx, topic, opts, active, sources.Build(active, srcOpts))
}

type sourceResult struct {
	items []core.Item
	err   string
}

func (r *Runner) execute(ctx context.Context, topic string, opts Options, active []core.Source, adapters []sources.Adapter) *core.ResultSet {
	started := time.Now()
	runID := uuid.New().String()

	from, to := opts.From, opts.To
	if from == "" || to == "" {
		from, to = dates.Range(defaultWindowDays, time.Now())
	}
	depth := opts.Depth
	if depth == "" {
		depth = core.DepthDefault
	}
	selector := opts.Selector
	if selector == "" {
		selector = "all"
	}
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	q := core.Query{Topic: topic, From: from, To: to, Depth: depth, Sources: active}

	log := logger.Get()
	log.Info("Starting research run",
		"run_id", runID,
		"topic", topic,
		"sources", len(adapters),
		"depth", string(depth),
		"from", from,
		"to", to,
	)

	results := make(map[core.Source]sourceResult, len(adapters))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, ad := range adapters {
		select {
		case <-ctx.Done():
			log.Warn("Research run cancelled", "run_id", runID, "reason", ctx.Err())
			mu.Lock()
			results[ad.Name()] = sourceResult{err: ctx.Err().Error()}
			mu.Unlock()
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{} // Acquire semaphore
		opts.emit(ProgressEvent{Source: ad.Name(), Stage: StageFetching})

		go func(ad sources.Adapter) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore

			res := searchOne(ctx, ad, q)

			mu.Lock()
			results[ad.Name()] = res
			mu.Unlock()

			if res.err != "" {
				log.Warn("Source finished with error",
					"run_id", runID,
					"source", string(ad.Name()),
					"items", len(res.items),
					"error", res.err,
				)
				opts.emit(ProgressEvent{Source: ad.Name(), Stage: StageFailed, Count: len(res.items), Err: res.err})
				return
			}
			log.Debug("Source finished", "run_id", runID, "source", string(ad.Name()), "items", len(res.items))
			opts.emit(ProgressEvent{Source: ad.Name(), Stage: StageDone, Count: len(res.items)})
		}(ad)
	}
	wg.Wait()

	opts.emit(ProgressEvent{Stage: StageProcessing})

	now := time.Now()
	perSource := make(map[core.Source][]core.Item, len(results))
	for src, res := range results {
		items := dates.FilterByDate(res.items, from, to, false)
		scoring.ScoreItems(items, now)
		scoring.SortItems(items)
		perSource[src] = dedupe.WithinSource(items)
	}

	var all []core.Item
	for _, src := range reportOrder {
		all = append(all, perSource[src]...)
	}
	deduped := dedupe.CrossSource(all)

	rs := &core.ResultSet{
		Topic:       topic,
		RangeFrom:   from,
		RangeTo:     to,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Mode:        selector,
		Items:       make(map[core.Source][]core.Item, len(results)),
		Errors:      make(map[core.Source]string),
	}
	for _, it := range deduped {
		rs.Items[it.Source] = append(rs.Items[it.Source], it)
	}
	// Every queried source shows up in the result, even with zero items, so
	// renderers can tell "no matches" from "not queried".
	for src, res := range results {
		if _, ok := rs.Items[src]; !ok {
			rs.Items[src] = []core.Item{}
		}
		if res.err != "" {
			rs.Errors[src] = res.err
		}
	}

	log.Info("Research run completed",
		"run_id", runID,
		"total_items", rs.TotalItems(),
		"source_errors", len(rs.Errors),
		"duration", time.Since(started).Round(time.Millisecond).String(),
	)
	opts.emit(ProgressEvent{Stage: StageComplete, Count: rs.TotalItems()})
	return rs
}

// searchOne runs a single adapter, converting a panic into a source error so
// one misbehaving source cannot take down the run.
func searchOne(ctx context.Context, ad sources.Adapter, q core.Query) (res sourceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = sourceResult{err: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	items, err := ad.Search(ctx, q)
	res.items = items
	if err != nil {
		res.err = err.Error()
	}
	return res
}

func containsSource(list []core.Source, want core.Source) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

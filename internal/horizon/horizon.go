// Package horizon aggregates activities over the single-session, 7-day and
// 28-day horizons relative to a reference time. Summaries are derived on
// every call; only per-activity metric results are cached.
package horizon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/observability"
	"github.com/starford/cadence/internal/store"
)

// Kind names a horizon.
type Kind string

const (
	KindSingleSession  Kind = "single_session"
	KindSevenDay       Kind = "seven_day"
	KindTwentyEightDay Kind = "twenty_eight_day"
)

// DefaultTrendThreshold is the relative load change below which a trend is
// flat.
const DefaultTrendThreshold = 0.15

// Config holds the aggregation settings.
type Config struct {
	Location       *time.Location // day boundaries; UTC when nil
	TrendThreshold float64
}

// Engine computes horizon summaries from the activity store.
type Engine struct {
	acts      store.ActivityStore
	baseline  metrics.Baseline
	params    metrics.Params
	loc       *time.Location
	threshold float64
	logger    *slog.Logger

	cache sync.Map // cacheKey -> *metrics.Result
	group singleflight.Group
	gen   atomic.Uint64 // bumped by Invalidate
}

// New creates an Engine.
func New(acts store.ActivityStore, b metrics.Baseline, p metrics.Params, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultTrendThreshold
	}
	return &Engine{
		acts:      acts,
		baseline:  b,
		params:    p,
		loc:       cfg.Location,
		threshold: cfg.TrendThreshold,
		logger:    logger,
	}
}

func cacheKey(id string) string {
	return fmt.Sprintf("%s@v%d", id, metrics.FormulaVersion)
}

// Metrics returns the metric result for one activity. Results are cached
// per activity id and formula version; concurrent misses for the same
// activity share one computation.
func (e *Engine) Metrics(ctx context.Context, id string) (*metrics.Result, error) {
	key := cacheKey(id)
	if v, ok := e.cache.Load(key); ok {
		observability.RecordMetricsCache(true)
		return v.(*metrics.Result), nil
	}
	observability.RecordMetricsCache(false)

	v, err, _ := e.group.Do(key, func() (any, error) {
		if v, ok := e.cache.Load(key); ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gen := e.gen.Load()
		a, err := e.acts.GetActivity(id)
		if err != nil {
			return nil, err
		}
		res := metrics.Compute(a, e.baseline, e.params)
		if e.gen.Load() == gen {
			e.cache.Store(key, &res)
		}
		return &res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*metrics.Result), nil
}

// Invalidate drops the cached results of ids. The importer calls it when an
// activity row is replaced or removed.
func (e *Engine) Invalidate(ids ...string) {
	e.gen.Add(1)
	for _, id := range ids {
		key := cacheKey(id)
		e.cache.Delete(key)
		e.group.Forget(key)
	}
}

// Session is one activity as it appears in a context.
type Session struct {
	ID              string          `json:"id"`
	Sport           models.Sport    `json:"sport"`
	StartTime       time.Time       `json:"start_time"`
	DurationSeconds float64         `json:"duration_s"`
	DistanceMeters  *float64        `json:"distance_m,omitempty"`
	Summary         models.Summary  `json:"summary"`
	Load            metrics.Measure `json:"training_load"`
}

// SportTotals aggregates the sessions of one sport.
type SportTotals struct {
	Sport           models.Sport `json:"sport"`
	Sessions        int          `json:"sessions"`
	DurationSeconds float64      `json:"duration_s"`
	DistanceMeters  float64      `json:"distance_m"`
}

// LoadStats summarises training load over a set of sessions. Total and Mean
// are nil when no session in a non-empty set has a determined load.
type LoadStats struct {
	Total        *float64 `json:"total"`
	Mean         *float64 `json:"mean"`
	Determined   int      `json:"determined"`
	Undetermined int      `json:"undetermined"`
}

// Week is one 7-day slice of the 28-day horizon.
type Week struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Sessions        int       `json:"sessions"`
	DurationSeconds float64   `json:"duration_s"`
	DistanceMeters  float64   `json:"distance_m"`
	Load            LoadStats `json:"load"`
}

// Summary is the aggregate of one horizon.
type Summary struct {
	Kind            Kind          `json:"kind"`
	Reference       time.Time     `json:"reference"`
	From            time.Time     `json:"from"`
	To              time.Time     `json:"to"`
	Sessions        int           `json:"sessions"`
	DurationSeconds float64       `json:"duration_s"`
	DistanceMeters  float64       `json:"distance_m"`
	BySport         []SportTotals `json:"by_sport"`
	Load            LoadStats     `json:"load"`
	Trend           Trend         `json:"trend"`
	Weeks           []Week        `json:"weeks,omitempty"`
	Session         *Session      `json:"session,omitempty"`
}

// Context bundles every horizon for one reference time.
type Context struct {
	Reference      time.Time                `json:"reference"`
	SingleSession  *Summary                 `json:"single_session"`
	SevenDay       Summary                  `json:"seven_day"`
	TwentyEightDay Summary                  `json:"twenty_eight_day"`
	LatestBySport  map[models.Sport]Session `json:"latest_by_sport"`
}

// entry is an activity with its training load attached.
type entry struct {
	act  models.Activity
	load metrics.Measure
}

// Context computes every horizon for ref. SingleSession is nil when no
// activity started at or before ref.
func (e *Engine) Context(ctx context.Context, ref time.Time) (*Context, error) {
	acts, err := e.acts.QueryActivities(store.ActivityFilter{To: ref})
	if err != nil {
		return nil, fmt.Errorf("horizon: query activities: %w", err)
	}
	entries := make([]entry, len(acts))
	for i, a := range acts {
		res, err := e.Metrics(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("horizon: metrics %s: %w", a.ID, err)
		}
		entries[i] = entry{act: a, load: res.Load}
	}

	out := &Context{
		Reference:     ref,
		LatestBySport: make(map[models.Sport]Session),
	}
	// acts is ordered by start time, so later entries overwrite earlier ones.
	for _, en := range entries {
		out.LatestBySport[en.act.Sport] = sessionOf(en)
	}
	if len(entries) > 0 {
		out.SingleSession = e.single(ref, entries)
	}
	out.SevenDay = e.window(KindSevenDay, ref, 7, entries)
	out.TwentyEightDay = e.window(KindTwentyEightDay, ref, 28, entries)
	out.TwentyEightDay.Weeks = e.weeks(out.TwentyEightDay.From, ref, entries)
	return out, nil
}

// WindowStart returns local midnight days-1 days before the day of ref.
func WindowStart(ref time.Time, days int, loc *time.Location) time.Time {
	r := ref.In(loc)
	return time.Date(r.Year(), r.Month(), r.Day()-(days-1), 0, 0, 0, 0, loc)
}

func (e *Engine) single(ref time.Time, entries []entry) *Summary {
	last := entries[len(entries)-1]
	s := summarize(KindSingleSession, ref, last.act.StartTime, last.act.EndTime(), entries[len(entries)-1:])
	sess := sessionOf(last)
	s.Session = &sess
	if len(entries) > 1 {
		s.Trend = e.trend(s.Load, loadStats(entries[len(entries)-2:len(entries)-1]))
	} else {
		s.Trend = Trend{Direction: TrendUndetermined, Reason: "no previous session"}
	}
	return &s
}

func (e *Engine) window(kind Kind, ref time.Time, days int, entries []entry) Summary {
	from := WindowStart(ref, days, e.loc)
	prevFrom := from.AddDate(0, 0, -days)
	cur := between(entries, from, ref)
	prev := between(entries, prevFrom, from.Add(-time.Nanosecond))

	s := summarize(kind, ref, from, ref, cur)
	s.Trend = e.trend(s.Load, loadStats(prev))
	return s
}

func (e *Engine) weeks(from, ref time.Time, entries []entry) []Week {
	out := make([]Week, 0, 4)
	for start := from; !start.After(ref); start = start.AddDate(0, 0, 7) {
		end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
		if end.After(ref) {
			end = ref
		}
		in := between(entries, start, end)
		w := Week{From: start, To: end, Sessions: len(in), Load: loadStats(in)}
		for _, en := range in {
			w.DurationSeconds += en.act.DurationSeconds
			if en.act.DistanceMeters != nil {
				w.DistanceMeters += *en.act.DistanceMeters
			}
		}
		out = append(out, w)
	}
	return out
}

// between returns the entries that started within [from, to].
func between(entries []entry, from, to time.Time) []entry {
	var out []entry
	for _, en := range entries {
		st := en.act.StartTime
		if st.Before(from) || st.After(to) {
			continue
		}
		out = append(out, en)
	}
	return out
}

func summarize(kind Kind, ref, from, to time.Time, in []entry) Summary {
	s := Summary{
		Kind:      kind,
		Reference: ref,
		From:      from,
		To:        to,
		Sessions:  len(in),
		BySport:   []SportTotals{},
		Load:      loadStats(in),
	}
	idx := make(map[models.Sport]int)
	for _, en := range in {
		a := en.act
		s.DurationSeconds += a.DurationSeconds
		i, ok := idx[a.Sport]
		if !ok {
			i = len(s.BySport)
			idx[a.Sport] = i
			s.BySport = append(s.BySport, SportTotals{Sport: a.Sport})
		}
		s.BySport[i].Sessions++
		s.BySport[i].DurationSeconds += a.DurationSeconds
		if a.DistanceMeters != nil {
			s.DistanceMeters += *a.DistanceMeters
			s.BySport[i].DistanceMeters += *a.DistanceMeters
		}
	}
	return s
}

func loadStats(in []entry) LoadStats {
	var st LoadStats
	var total float64
	for _, en := range in {
		if en.load.Determined() {
			st.Determined++
			total += *en.load.Value
		} else {
			st.Undetermined++
		}
	}
	if len(in) > 0 && st.Determined == 0 {
		return st
	}
	st.Total = models.Float(total)
	if st.Determined > 0 {
		st.Mean = models.Float(total / float64(st.Determined))
	}
	return st
}

func sessionOf(en entry) Session {
	a := en.act
	return Session{
		ID:              a.ID,
		Sport:           a.Sport,
		StartTime:       a.StartTime,
		DurationSeconds: a.DurationSeconds,
		DistanceMeters:  a.DistanceMeters,
		Summary:         a.Summary,
		Load:            en.load,
	}
}

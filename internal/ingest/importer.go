// Package ingest brings the activity store up to date with the source
// directory. Each file is fingerprinted, compared against the import ledger
// and only decoded when its content is new.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/checksum"
	"github.com/starford/cadence/internal/events"
	"github.com/starford/cadence/internal/fit"
	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/models"
	"github.com/starford/cadence/internal/observability"
	"github.com/starford/cadence/internal/storage"
	"github.com/starford/cadence/internal/store"
)

// Decision is the ledger verdict for one file.
type Decision int

const (
	Skip Decision = iota
	Reimport
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "reimport"
}

// Resolution is the result of comparing a file against its ledger entry.
type Resolution struct {
	Decision    Decision
	Fingerprint string
	Previous    *models.LedgerEntry
}

// Outcome is what happened to a single file.
type Outcome string

const (
	OutcomeImported     Outcome = "imported"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeFailed       Outcome = "failed"
)

// FileResult describes the processing of one file.
type FileResult struct {
	Path       string              `json:"path"`
	Outcome    Outcome             `json:"outcome"`
	ActivityID string              `json:"activity_id,omitempty"`
	Write      models.WriteOutcome `json:"write,omitempty"`
	Kind       string              `json:"kind,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// Failure is a file that could not be imported.
type Failure struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Report summarises a directory import.
type Report struct {
	Imported     int       `json:"imported"`
	Skipped      int       `json:"skipped"`
	Unrecognized int       `json:"unrecognized"`
	Failed       []Failure `json:"failed"`
}

func (r *Report) add(res FileResult) {
	switch res.Outcome {
	case OutcomeImported:
		r.Imported++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeUnrecognized:
		r.Unrecognized++
	case OutcomeFailed:
		r.Failed = append(r.Failed, Failure{Path: res.Path, Kind: res.Kind, Reason: res.Reason})
	}
}

// Importer imports recordings from a storage provider into the store.
type Importer struct {
	src       storage.Provider
	ledger    store.Ledger
	params    metrics.Params
	workers   int
	publisher events.Publisher
	inv       Invalidator
	logger    *slog.Logger
	now       func() time.Time
	locks     keyedMutex
}

// Invalidator drops state derived from activities whose stored row was
// replaced or removed.
type Invalidator interface {
	Invalidate(ids ...string)
}

type noInvalidation struct{}

func (noInvalidation) Invalidate(...string) {}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithParams sets the metric constants used for stored summaries.
func WithParams(p metrics.Params) Option {
	return func(im *Importer) { im.params = p }
}

// WithPublisher sets where change events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(im *Importer) {
		if p != nil {
			im.publisher = p
		}
	}
}

// WithInvalidator registers the cache to clear after each committed import.
func WithInvalidator(inv Invalidator) Option {
	return func(im *Importer) {
		if inv != nil {
			im.inv = inv
		}
	}
}

// WithClock overrides the wall clock used for write stamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// New creates an Importer.
func New(src storage.Provider, ledger store.Ledger, logger *slog.Logger, opts ...Option) *Importer {
	im := &Importer{
		src:       src,
		ledger:    ledger,
		params:    metrics.DefaultParams(),
		workers:   4,
		publisher: events.Noop{},
		inv:       noInvalidation{},
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Resolve decides whether data at path needs importing. Only a fingerprint
// different from the stored one (or no entry at all) triggers a reimport;
// failed entries are retried only once their content changes.
func (im *Importer) Resolve(path string, data []byte) (Resolution, error) {
	res := Resolution{Decision: Reimport, Fingerprint: checksum.Sum(data)}
	prev, err := im.ledger.GetLedger(path)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return res, nil
	case err != nil:
		return res, err
	}
	res.Previous = prev
	if prev.Fingerprint == res.Fingerprint {
		res.Decision = Skip
	}
	return res, nil
}

// ImportFile processes a single file. Per-file failures are recorded in the
// ledger and reported in the result; the returned error is reserved for
// failures of the ledger itself.
func (im *Importer) ImportFile(ctx context.Context, path string) (FileResult, error) {
	unlock := im.locks.Lock(path)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return FileResult{}, err
	}

	data, err := im.src.Read(path)
	if err != nil {
		prev, _ := im.ledger.GetLedger(path)
		return im.fail(ctx, path, "", prev, err)
	}

	res, err := im.Resolve(path, data)
	if err != nil {
		return FileResult{}, fmt.Errorf("ingest: resolve %s: %w", path, err)
	}
	if res.Decision == Skip {
		observability.RecordImportedFile(string(OutcomeSkipped))
		return FileResult{Path: path, Outcome: OutcomeSkipped, ActivityID: res.Previous.ActivityID}, nil
	}

	cls, err := fit.Classify(data)
	if err != nil {
		return im.fail(ctx, path, res.Fingerprint, res.Previous, err)
	}
	now := im.now().UTC()
	if !cls.IsActivity() {
		entry := models.LedgerEntry{
			Path:           path,
			Fingerprint:    res.Fingerprint,
			Classification: models.ClassificationUnrecognized,
			Status:         models.LedgerImported,
			ImportedAt:     &now,
			UpdatedAt:      now,
		}
		if _, err := im.ledger.CommitImport(store.ImportCommit{Entry: entry, WrittenAt: now}); err != nil {
			return FileResult{}, fmt.Errorf("ingest: record %s: %w", path, err)
		}
		im.invalidate("", res.Previous)
		im.logger.Debug("ingest: unrecognized file", slog.String("path", path), slog.Int("file_type", int(cls.FileType)))
		observability.RecordImportedFile(string(OutcomeUnrecognized))
		return FileResult{Path: path, Outcome: OutcomeUnrecognized}, nil
	}

	f, err := fit.Decode(data)
	if err != nil {
		return im.fail(ctx, path, res.Fingerprint, res.Previous, err)
	}
	a, err := toActivity(f, res.Fingerprint, path, im.params)
	if err != nil {
		return im.fail(ctx, path, res.Fingerprint, res.Previous, err)
	}
	a.ImportedAt = now

	entry := models.LedgerEntry{
		Path:           path,
		Fingerprint:    res.Fingerprint,
		Classification: string(a.Sport),
		Status:         models.LedgerImported,
		ImportedAt:     &now,
		UpdatedAt:      now,
	}
	write, err := im.ledger.CommitImport(store.ImportCommit{Entry: entry, Activity: a, WrittenAt: now})
	if err != nil {
		return FileResult{}, fmt.Errorf("ingest: commit %s: %w", path, err)
	}
	im.invalidate(a.ID, res.Previous)

	im.logger.Info("ingest: imported",
		slog.String("path", path),
		slog.String("activity_id", a.ID),
		slog.String("sport", string(a.Sport)),
		slog.String("write", string(write)))
	observability.RecordImportedFile(string(OutcomeImported))
	observability.RecordActivityWrite(string(write))
	observability.RecordActivityImported(now)

	ev := events.New(events.ActivityImported, a.ID, map[string]any{
		"path":       path,
		"sport":      a.Sport,
		"start_time": a.StartTime,
		"write":      write,
	})
	im.publish(ctx, ev)
	return FileResult{Path: path, Outcome: OutcomeImported, ActivityID: a.ID, Write: write}, nil
}

// invalidate clears cached results for the activity just written and for
// the one the path referenced before, which the commit may have removed.
func (im *Importer) invalidate(id string, prev *models.LedgerEntry) {
	var ids []string
	if id != "" {
		ids = append(ids, id)
	}
	if prev != nil && prev.ActivityID != "" && prev.ActivityID != id {
		ids = append(ids, prev.ActivityID)
	}
	if len(ids) > 0 {
		im.inv.Invalidate(ids...)
	}
}

// publish hands ev to the publisher. A full outbox has already logged the
// drop.
func (im *Importer) publish(ctx context.Context, ev events.Event) {
	err := im.publisher.Publish(ctx, ev)
	if err != nil && !errors.Is(err, events.ErrOutboxFull) {
		im.logger.Warn("ingest: publish failed",
			slog.String("type", ev.Type),
			slog.String("key", ev.Key),
			slog.String("error", err.Error()))
	}
}

// fail records a failed import. The previous activity of the path stays
// referenced so a broken rewrite does not remove good data. A failure that
// repeats the recorded one exactly is not written again.
func (im *Importer) fail(ctx context.Context, path, fingerprint string, prev *models.LedgerEntry, cause error) (FileResult, error) {
	kind := apperr.KindName(cause)
	res := FileResult{Path: path, Outcome: OutcomeFailed, Kind: kind, Reason: cause.Error()}
	if prev != nil && prev.Status == models.LedgerFailed && prev.Fingerprint == fingerprint &&
		prev.ErrorKind == kind && prev.Error == cause.Error() {
		im.logger.Debug("ingest: failure unchanged", slog.String("path", path), slog.String("kind", kind))
		observability.RecordImportedFile(string(OutcomeFailed))
		return res, nil
	}
	entry := models.LedgerEntry{
		Path:        path,
		Fingerprint: fingerprint,
		Status:      models.LedgerFailed,
		ErrorKind:   kind,
		Error:       cause.Error(),
		UpdatedAt:   im.now().UTC(),
	}
	if prev != nil {
		entry.ActivityID = prev.ActivityID
		entry.Classification = prev.Classification
	}
	if err := im.ledger.RecordLedger(entry); err != nil {
		return FileResult{}, fmt.Errorf("ingest: record failure %s: %w", path, err)
	}

	im.logger.Warn("ingest: file failed",
		slog.String("path", path),
		slog.String("kind", kind),
		slog.String("error", cause.Error()))
	observability.RecordImportedFile(string(OutcomeFailed))

	im.publish(ctx, events.New(events.ImportFailed, path, map[string]string{"kind": kind, "reason": cause.Error()}))
	return res, nil
}

// ImportDir imports every matching file under dir ("" for the whole root).
// Files are processed on a bounded worker pool. A failing file never stops
// the others.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*Report, error) {
	start := time.Now()
	files, err := im.src.List(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("ingest.ImportDir", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: list %q: %w", dir, err)
	}

	var mu sync.Mutex
	report := &Report{Failed: []Failure{}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, sf := range files {
		g.Go(func() error {
			res, err := im.ImportFile(gctx, sf.Path)
			if err != nil {
				return err
			}
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	observability.ObserveImportBatch(time.Since(start))
	im.logger.Info("ingest: directory imported",
		slog.String("dir", dir),
		slog.Int("files", len(files)),
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped),
		slog.Int("unrecognized", report.Unrecognized),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

// Package pipeline runs one merge: fetch every source, fold the results into
// a single guide in source order, then publish it or fall back to the last
// published guide.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/raffaelramalhorosa/epgmerge/internal/config"
	"github.com/raffaelramalhorosa/epgmerge/internal/fallback"
	"github.com/raffaelramalhorosa/epgmerge/internal/merge"
	"github.com/raffaelramalhorosa/epgmerge/internal/metrics"
	"github.com/raffaelramalhorosa/epgmerge/internal/models"
	"github.com/raffaelramalhorosa/epgmerge/internal/store"
	"github.com/raffaelramalhorosa/epgmerge/internal/window"
	"github.com/raffaelramalhorosa/epgmerge/internal/writer"
)

// ErrTotalFailure means no source produced usable data.
var ErrTotalFailure = errors.New("all sources failed or yielded no data")

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeMerged   Outcome = "merged"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

var outcomes = []string{string(OutcomeMerged), string(OutcomeFallback), string(OutcomeFailed)}

// Source delivers fetch results in the order of urls.
type Source interface {
	FetchAll(ctx context.Context, urls []string) <-chan models.FetchResult
}

// Report summarises a run.
type Report struct {
	RunID        string
	Outcome      Outcome
	Window       window.Window
	SourcesTotal int
	SourcesOK    int
	Channels     int
	Programmes   int
	Stats        merge.Stats

	// Failures holds one error per failed source, nil if none failed.
	Failures error
}

// Runner executes merge runs for one configuration.
type Runner struct {
	cfg     *config.Config
	src     Source
	logger  *slog.Logger
	metrics *metrics.Run
	now     func() time.Time
}

// New returns a Runner that reads from src and logs to logger.
func New(cfg *config.Config, src Source, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		src:    src,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics records run metrics into m and, when the config names a
// metrics file, writes them there at the end of the run.
func (r *Runner) WithMetrics(m *metrics.Run) *Runner {
	r.metrics = m
	return r
}

// WithClock replaces the wall clock used for the retention window.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run performs one merge. A nil error means either a fresh guide was written
// or the previous one was restored; Report.Outcome tells which. Per-source
// failures never fail the run on their own. If ctx is done by the time the
// sources are drained, Run returns ctx's error and writes nothing.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:  uuid.NewString(),
		Window: window.New(r.now(), r.cfg.KeepPastDays, r.cfg.KeepFutureDays),
	}
	log := r.logger.With("run_id", rep.RunID)

	urls := r.cfg.SourceURLs()
	rep.SourcesTotal = len(urls)
	log.Info("run starting", "sources", len(urls), "window_start", rep.Window.Start, "window_end", rep.Window.End)

	st := store.New()
	eng := merge.New(rep.Window, st)

	var failures *multierror.Error
	for res := range r.src.FetchAll(ctx, urls) {
		if res.Err != nil {
			log.Warn("source failed", "url", res.URL, "error", res.Err)
			failures = multierror.Append(failures, res.Err)
			continue
		}

		rep.SourcesOK++
		s := eng.Apply(res.Document)
		rep.Stats.Add(s)
		log.Debug("source merged",
			"url", res.URL,
			"channels", s.Channels,
			"programmes", s.Programmes,
			"duplicates", s.DuplicateProgrammes,
			"outside_window", s.OutsideWindow,
		)
	}
	rep.Failures = failures.ErrorOrNil()
	rep.Channels, rep.Programmes = st.Counts()

	// An interrupted run publishes nothing, not even the previous guide.
	if err := ctx.Err(); err != nil {
		rep.Outcome = OutcomeFailed
		log.Error("run interrupted, output left untouched", "sources_ok", rep.SourcesOK, "error", err)
		return rep, fmt.Errorf("run interrupted: %w", err)
	}

	if fallback.TotalFailure(rep.SourcesOK, rep.Channels, rep.Programmes) {
		return r.fallBack(log, rep)
	}

	opts := writer.Options{Generator: r.cfg.GeneratorName, Level: r.cfg.CompressionLevel}
	if err := writer.WriteFile(r.cfg.Output, st.Document(), opts); err != nil {
		rep.Outcome = OutcomeFailed
		r.finish(log, rep)
		return rep, fmt.Errorf("write guide: %w", err)
	}

	rep.Outcome = OutcomeMerged
	log.Info("merge ok",
		"sources_ok", rep.SourcesOK,
		"sources_total", rep.SourcesTotal,
		"channels", rep.Channels,
		"programmes", rep.Programmes,
		"output", r.cfg.Output,
	)
	r.finish(log, rep)
	return rep, nil
}

func (r *Runner) fallBack(log *slog.Logger, rep *Report) (*Report, error) {
	guard := fallback.Guard{Previous: r.cfg.Previous, Output: r.cfg.Output}
	if err := guard.Restore(); err != nil {
		rep.Outcome = OutcomeFailed
		log.Error("all sources failed and the previous guide could not be reused",
			"previous", r.cfg.Previous,
			"sources_ok", rep.SourcesOK,
			"error", err,
		)
		r.finish(log, rep)
		return rep, errors.Join(ErrTotalFailure, err)
	}

	rep.Outcome = OutcomeFallback
	log.Warn("all sources failed, reused previous guide",
		"previous", r.cfg.Previous,
		"output", r.cfg.Output,
		"sources_ok", rep.SourcesOK,
	)
	r.finish(log, rep)
	return rep, nil
}

func (r *Runner) finish(log *slog.Logger, rep *Report) {
	if r.metrics == nil {
		return
	}

	m := r.metrics
	m.SourcesTotal.Set(float64(rep.SourcesTotal))
	m.SourcesOK.Set(float64(rep.SourcesOK))
	m.Channels.Set(float64(rep.Channels))
	m.Programmes.Set(float64(rep.Programmes))
	m.Dropped.WithLabelValues("channel", "duplicate_or_no_id").Set(float64(rep.Stats.DroppedChannels))
	m.Dropped.WithLabelValues("programme", "duplicate").Set(float64(rep.Stats.DuplicateProgrammes))
	m.Dropped.WithLabelValues("programme", "outside_window").Set(float64(rep.Stats.OutsideWindow))
	m.SetOutcome(string(rep.Outcome), outcomes, r.now())

	if r.cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(r.cfg.MetricsFile); err != nil {
		log.Warn("failed to write metrics", "path", r.cfg.MetricsFile, "error", err)
	}
}

// Package pipeline orchestrates one entity-resolution run: load the three
// source extracts, normalize, link, reconcile, and publish the artifact
// tables atomically.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-xref/internal/config"
	"github.com/sells-group/provider-xref/internal/model"
	"github.com/sells-group/provider-xref/internal/resolve"
	"github.com/sells-group/provider-xref/internal/source"
	"github.com/sells-group/provider-xref/internal/store"
)

// Pipeline wires the resolution stages to a configured store.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	log   *zap.Logger
}

// New builds a Pipeline.
func New(cfg *config.Config, st store.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: st,
		log:   zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes one full pipeline pass. On success the artifact tables are
// replaced in a single transaction and the run is logged as succeeded. On
// any failure the previously published artifacts stay intact and the run
// is logged as failed with its error. With dryRun set, everything executes
// except the publish.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (*model.RunSummary, error) {
	summary := model.RunSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	p.log.Info("run starting", zap.String("run_id", summary.ID), zap.Bool("dry_run", dryRun))

	artifacts, err := p.resolve(ctx)
	if err != nil {
		return p.fail(ctx, summary, err)
	}

	summary.EntityCount = len(artifacts.Entities)
	summary.ChainCount = len(artifacts.Chains)
	summary.PaymentCount = len(artifacts.Payments)
	for _, c := range artifacts.Conflicts {
		switch c.ConflictType {
		case model.ConflictMultiMatch:
			summary.MultiMatchCount = c.Count
		case model.ConflictNameMismatch:
			summary.NameMismatchPct = c.PctAffected
		}
	}

	if err := p.checkRowCollapse(ctx, len(artifacts.Entities)); err != nil {
		return p.fail(ctx, summary, err)
	}

	summary.Status = model.RunStatusSucceeded
	summary.FinishedAt = time.Now().UTC()
	artifacts.Summary = summary

	if dryRun {
		p.log.Info("dry run complete, skipping publish",
			zap.String("run_id", summary.ID),
			zap.Int("entities", summary.EntityCount),
			zap.Int("chains", summary.ChainCount),
		)
		return &summary, nil
	}

	if err := p.store.PublishRun(ctx, artifacts); err != nil {
		summary.Status = model.RunStatusFailed
		summary.Error = err.Error()
		return &summary, err
	}

	p.log.Info("run published",
		zap.String("run_id", summary.ID),
		zap.Int("entities", summary.EntityCount),
		zap.Int("chains", summary.ChainCount),
		zap.Int("payments", summary.PaymentCount),
		zap.Int("multi_match", summary.MultiMatchCount),
		zap.Float64("name_mismatch_pct", summary.NameMismatchPct),
	)
	return &summary, nil
}

// resolve runs every stage up to (not including) publish.
func (p *Pipeline) resolve(ctx context.Context) (*store.Artifacts, error) {
	opts := source.Options{Windows1252: p.cfg.Inputs.Windows1252}

	var medicareRaw, pecosRaw, opRaw []model.RawRecord
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		medicareRaw, err = source.Load(p.cfg.Inputs.Medicare, model.SourceMedicare, opts)
		return err
	})
	g.Go(func() (err error) {
		pecosRaw, err = source.Load(p.cfg.Inputs.PECOS, model.SourcePECOS, opts)
		return err
	})
	g.Go(func() (err error) {
		opRaw, err = source.Load(p.cfg.Inputs.OpenPayments, model.SourceOpenPayments, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(medicareRaw) == 0 {
		return nil, eris.New("pipeline: medicare extract is empty, nothing to anchor on")
	}

	backbone := p.normalizeAll(ctx, medicareRaw)
	pecosRecs := p.normalizeAll(ctx, pecosRaw)
	opRecs := p.normalizeAll(ctx, opRaw)

	matcher := resolve.NewMatcher(backbone, resolve.MatchConfig{
		MinScore: p.cfg.Match.MinScore,
	})

	var opResult, pecosResult resolve.MatchResult
	mg, _ := errgroup.WithContext(ctx)
	mg.Go(func() error {
		opResult = matcher.Match(opRecs)
		return nil
	})
	mg.Go(func() error {
		pecosResult = matcher.Match(pecosRecs)
		return nil
	})
	_ = mg.Wait()

	rec := resolve.Reconcile(backbone, opResult.Links, pecosResult.Links, opRecs, pecosRecs)
	if rec.SkippedInvalidNPI > 0 || rec.SkippedDuplicates > 0 {
		p.log.Warn("backbone rows skipped",
			zap.Int("invalid_npi", rec.SkippedInvalidNPI),
			zap.Int("duplicates", rec.SkippedDuplicates),
		)
	}

	chains := resolve.BuildChains(opResult.Links, pecosResult.Links, pecosRecs, rec.ProviderIDByRow)
	payments := resolve.AggregatePayments(opResult.Links, opRecs, rec.ProviderIDByRow)

	conflicts := resolve.DetectConflicts(resolve.ConflictInput{
		MultiMatchTies: opResult.MultiMatchTies + pecosResult.MultiMatchTies,
		Backbone:       backbone,
		OPLinks:        opResult.Links,
		PECOSLinks:     pecosResult.Links,
		OPRecords:      opRecs,
		PECOSRecords:   pecosRecs,
		NameTolerance:  p.cfg.Match.NameTolerance,
	})
	if err := resolve.CheckBounds(conflicts, resolve.Bounds{
		MaxMultiMatch:      p.cfg.Match.MaxMultiMatch,
		MaxNameMismatchPct: p.cfg.Match.MaxNameMismatchPct,
	}); err != nil {
		return nil, err
	}

	return &store.Artifacts{
		Entities:  rec.Entities,
		Chains:    chains,
		Payments:  payments,
		Conflicts: conflicts,
	}, nil
}

// normalizeAll normalizes records across a bounded worker pool. Each worker
// owns a contiguous shard, so no two goroutines touch the same index.
func (p *Pipeline) normalizeAll(ctx context.Context, raw []model.RawRecord) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, len(raw))
	workers := p.cfg.Match.Workers
	if workers < 1 {
		workers = 1
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	shard := (len(raw) + workers - 1) / workers
	for lo := 0; lo < len(raw); lo += shard {
		hi := lo + shard
		if hi > len(raw) {
			hi = len(raw)
		}
		lo := lo
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				out[i] = resolve.NormalizeRecord(raw[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// checkRowCollapse compares this run's entity count against the last
// successful run. A drastic shrink almost always means a truncated or
// malformed input, so the run aborts before touching published tables.
func (p *Pipeline) checkRowCollapse(ctx context.Context, entities int) error {
	if p.cfg.Match.MinRowRatio <= 0 {
		return nil
	}
	last, err := p.store.LastSuccessfulRun(ctx)
	if err != nil {
		return err
	}
	if last == nil || last.EntityCount == 0 {
		return nil
	}
	ratio := float64(entities) / float64(last.EntityCount)
	if ratio < p.cfg.Match.MinRowRatio {
		return eris.Errorf(
			"pipeline: entity count collapsed to %d from %d (ratio %.2f below %.2f), refusing to publish",
			entities, last.EntityCount, ratio, p.cfg.Match.MinRowRatio,
		)
	}
	return nil
}

// fail records the failed run and returns the original error. A failure to
// write the run log is logged but never masks the pipeline error.
func (p *Pipeline) fail(ctx context.Context, summary model.RunSummary, err error) (*model.RunSummary, error) {
	summary.Status = model.RunStatusFailed
	summary.Error = err.Error()
	summary.FinishedAt = time.Now().UTC()

	if recErr := p.store.RecordFailure(ctx, summary); recErr != nil {
		p.log.Error("failed to record run failure", zap.Error(recErr))
	}
	p.log.Error("run failed", zap.String("run_id", summary.ID), zap.Error(err))
	return &summary, err
}

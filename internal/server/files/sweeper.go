package files

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/blob"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_runs_total",
		Help: "Total orphan sweep runs",
	})

	sweepReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_blobs_reclaimed_total",
		Help: "Total unreferenced blobs deleted by the sweeper",
	})
)

// Sweeper reclaims blobs no file record references. Uploads write the blob
// before the record and replace deletes records before blobs, so an
// unreferenced blob is either a crashed operation's leftover or an upload
// still in flight. The grace window keeps in-flight uploads safe.
type Sweeper struct {
	repo     Repository
	store    blob.Store
	interval time.Duration
	grace    time.Duration
	logger   logging.Logger

	cancel context.CancelFunc
}

func NewSweeper(repo Repository, store blob.Store, interval, grace time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		store:    store,
		interval: interval,
		grace:    grace,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start launches the background loop. The first sweep runs immediately.
func (sw *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel

	go sw.run(runCtx)

	sw.logger.Info(ctx, "orphan sweeper started",
		"interval", sw.interval.String(), "grace", sw.grace.String())
}

func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
}

func (sw *Sweeper) run(ctx context.Context) {
	if _, err := sw.RunOnce(ctx); err != nil {
		sw.logger.Error(ctx, "sweep failed", "error", err.Error())
	}

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sw.RunOnce(ctx); err != nil {
				sw.logger.Error(ctx, "sweep failed", "error", err.Error())
			}
		}
	}
}

// RunOnce performs one sweep and returns the number of blobs reclaimed.
func (sw *Sweeper) RunOnce(ctx context.Context) (int, error) {
	sweepRunsTotal.Inc()

	names, err := sw.repo.ListStoredNames(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(names))
	for _, name := range names {
		referenced[name] = struct{}{}
	}

	objects, err := sw.store.List(ctx)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	cutoff := time.Now().Add(-sw.grace)
	for _, obj := range objects {
		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			// Possibly an upload between blob write and record insert.
			continue
		}
		if err := sw.store.Delete(ctx, obj.Name); err != nil {
			sw.logger.Error(ctx, "orphan delete failed", "stored_name", obj.Name, "error", err.Error())
			continue
		}
		sw.logger.Info(ctx, "orphaned blob reclaimed", "stored_name", obj.Name, "size", obj.Size)
		sweepReclaimedTotal.Inc()
		reclaimed++
	}

	return reclaimed, nil
}

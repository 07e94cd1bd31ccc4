package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/skimreader/skim/internal/skim"
)

// Syncer is one synchronization pass; every synchronizer in this package
// satisfies it.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Orchestrator sequences the items pipeline and runs the subscription
// pipeline beside it.
//
// Within the items pipeline the order is load-bearing: flags must drain
// before the id refresh tombstones everything, and the id universe must be
// settled before content is fetched. The two pipelines are independent and
// may overlap; a second request for a pipeline already in flight is refused,
// not queued.
type Orchestrator struct {
	flags Syncer
	ids   Syncer
	items Syncer
	subs  Syncer

	itemsBusy atomic.Bool
	subsBusy  atomic.Bool
}

func NewOrchestrator(flags, ids, items, subs Syncer) *Orchestrator {
	return &Orchestrator{flags: flags, ids: ids, items: items, subs: subs}
}

// SyncAll drives one full items-pipeline pass: Flags, then IDs, then Items.
//
// A stage failure is recorded but does not halt the pipeline; every stage is
// idempotent and re-driveable, so later stages can only do valid (if
// reduced) work, and whatever was skipped is picked up on the next pass.
// Returning is the pass's completion signal, error or not.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	if !o.itemsBusy.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "sync already in progress")
		return skim.ErrBusy
	}
	defer o.itemsBusy.Store(false)

	slog.InfoContext(ctx, "starting sync")

	errs := []error{}
	if err := o.flags.Sync(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.ids.Sync(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.items.Sync(ctx); err != nil {
		errs = append(errs, err)
	}

	slog.InfoContext(ctx, "sync finished", "failures", len(errs))

	return errors.Join(errs...)
}

// SyncSubscriptions refreshes the subscription snapshot, independently of
// the items pipeline.
func (o *Orchestrator) SyncSubscriptions(ctx context.Context) error {
	if !o.subsBusy.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "subscription sync already in progress")
		return skim.ErrBusy
	}
	defer o.subsBusy.Store(false)

	return o.subs.Sync(ctx)
}

// Package chain propagates a successful transition across related documents:
// consolidation parents release their children on refusal, and a final
// treatment closes every upstream record. Traversal is explicit and
// bounded-depth; the document graph is a shallow DAG.
package chain

import (
	"context"
	"log/slog"
	"time"

	"bordereau/internal/bsd/machine"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/ports"
	dErrors "bordereau/pkg/domain-errors"
)

// maxCascadeDepth bounds the upstream walk. Grouping chains observed in
// production stay far below this.
const maxCascadeDepth = 10

type Propagator struct {
	store  ports.DocumentStore
	logger *slog.Logger
}

type Option func(*Propagator)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Propagator) { p.logger = logger }
}

func New(store ports.DocumentStore, opts ...Option) *Propagator {
	p := &Propagator{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply runs the side effects of a committed transition. It mutates d's
// relations in place (the caller saves d afterwards, inside the same
// transaction) and persists every other touched document. It returns the
// other documents it modified so the caller can emit events for them.
func (p *Propagator) Apply(ctx context.Context, d *models.Document, res *machine.Result, now time.Time) ([]*models.Document, error) {
	var affected []*models.Document

	switch d.Status {
	case models.StatusRefused:
		released, err := p.releaseChildren(ctx, d, now)
		if err != nil {
			return nil, err
		}
		affected = append(affected, released...)
		detached, err := p.detachForwarding(ctx, d, now)
		if err != nil {
			return nil, err
		}
		affected = append(affected, detached...)
	case models.StatusProcessed, models.StatusNoTraceability:
		closed, err := p.closeAncestors(ctx, d, now, 0)
		if err != nil {
			return nil, err
		}
		affected = append(affected, closed...)
	}

	// Delete-on-finalize: signing the operation while a trailing transporter
	// never signed drops that slot, since its leg will not happen.
	if res.Previous != d.Status && d.Status.IsTerminal() {
		p.dropUnsignedTransporters(d)
	}

	return affected, nil
}

// releaseChildren detaches every grouped child of a refused consolidation
// document and puts it back in the awaiting state it held before grouping.
func (p *Propagator) releaseChildren(ctx context.Context, parent *models.Document, now time.Time) ([]*models.Document, error) {
	children, err := p.store.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de libérer les bordereaux groupés")
	}
	var released []*models.Document
	for _, child := range children {
		child.GroupedInID = nil
		child.Status = models.StatusAwaitingChild
		child.UpdatedAt = now
		if err := p.store.Save(ctx, child); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de libérer les bordereaux groupés")
		}
		released = append(released, child)
	}
	if len(released) > 0 {
		p.logger.InfoContext(ctx, "released grouped children after refusal",
			"parent", parent.ReadableID, "count", len(released))
	}
	return released, nil
}

// detachForwarding breaks the re-expedition link of a refused continuation
// document, leaving the original in its prior state.
func (p *Propagator) detachForwarding(ctx context.Context, d *models.Document, now time.Time) ([]*models.Document, error) {
	if d.ForwardingID == nil {
		return nil, nil
	}
	original, err := p.store.Get(ctx, *d.ForwardingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de détacher le bordereau de réexpédition")
	}
	original.ForwardedInID = nil
	original.UpdatedAt = now
	if err := p.store.Save(ctx, original); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de détacher le bordereau de réexpédition")
	}
	d.ForwardingID = nil
	return []*models.Document{original}, nil
}

// closeAncestors marks every upstream record PROCESSED: the grouped children
// consolidated into d, and the original d re-expeditions. The walk recurses
// so a final treatment closes whole consolidation chains, and is idempotent
// over already-processed ancestors.
func (p *Propagator) closeAncestors(ctx context.Context, d *models.Document, now time.Time, depth int) ([]*models.Document, error) {
	if depth >= maxCascadeDepth {
		return nil, dErrors.New(dErrors.CodeInternal, "la chaîne de regroupement dépasse la profondeur maximale")
	}

	var upstream []*models.Document
	children, err := p.store.ListChildren(ctx, d.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de clôturer les bordereaux amont")
	}
	upstream = append(upstream, children...)
	if d.ForwardingID != nil {
		original, err := p.store.Get(ctx, *d.ForwardingID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de clôturer les bordereaux amont")
		}
		upstream = append(upstream, original)
	}

	var closed []*models.Document
	for _, ancestor := range upstream {
		if ancestor.Status == models.StatusProcessed {
			continue
		}
		ancestor.Status = models.StatusProcessed
		ancestor.UpdatedAt = now
		if err := p.store.Save(ctx, ancestor); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "impossible de clôturer les bordereaux amont")
		}
		closed = append(closed, ancestor)
		above, err := p.closeAncestors(ctx, ancestor, now, depth+1)
		if err != nil {
			return nil, err
		}
		closed = append(closed, above...)
	}
	return closed, nil
}

// dropUnsignedTransporters removes trailing slots that never signed once the
// document reaches a terminal status, compacting ordinals.
func (p *Propagator) dropUnsignedTransporters(d *models.Document) {
	kept := d.Transporters[:0]
	for _, t := range d.Transporters {
		if t.Signed() {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(d.Transporters) {
		return
	}
	d.Transporters = kept
	for i := range d.Transporters {
		d.Transporters[i].Number = i + 1
	}
}

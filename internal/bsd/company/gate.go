// Package company implements the company status gate: no signature may name
// a closed or dormant establishment, unless the slot referencing it was
// already locked by a prior signature. Directory failures block the
// signature (fail closed) after one retry.
package company

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bordereau/internal/bsd/models"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/circuit"
)

// AdministrativeStatus mirrors the company directory's classification.
type AdministrativeStatus string

const (
	StatusOpen   AdministrativeStatus = "O"
	StatusClosed AdministrativeStatus = "F"
)

// Info is the directory's view of an establishment.
type Info struct {
	Siret                id.Siret
	AdministrativeStatus AdministrativeStatus
	IsDormant            bool
	Name                 string
	Address              string
}

// DirectoryLookup consults the external company registry. It may fail or
// time out; the gate treats both as blocking.
type DirectoryLookup interface {
	Lookup(ctx context.Context, siret id.Siret) (*Info, error)
}

// errDirectoryUnavailable short-circuits lookups while the breaker is open.
var errDirectoryUnavailable = errors.New("annuaire des entreprises indisponible")

// Gate checks every establishment a signature would engage.
type Gate struct {
	directory     DirectoryLookup
	breaker       *circuit.Breaker
	retryDelay    time.Duration
	lookupTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Gate)

func WithRetryDelay(d time.Duration) Option {
	return func(g *Gate) { g.retryDelay = d }
}

// WithLookupTimeout bounds each individual directory call.
func WithLookupTimeout(d time.Duration) Option {
	return func(g *Gate) { g.lookupTimeout = d }
}

// WithBreaker replaces the default directory breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gate) { g.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(directory DirectoryLookup, opts ...Option) *Gate {
	g := &Gate{
		directory:  directory,
		breaker:    circuit.New("company-directory"),
		retryDelay: 500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// slotRef ties a company slot to the lock that exempts it from the check.
type slotRef struct {
	siret  id.Siret
	locked bool
}

// CheckSignature verifies every unlocked company slot the document names. A
// company that closed after it validly signed must not retroactively block
// the document, hence the locked-slot exemption.
func (g *Gate) CheckSignature(ctx context.Context, d *models.Document) error {
	for _, ref := range companySlots(d) {
		if ref.locked || ref.siret.IsZero() {
			continue
		}
		info, err := g.lookupWithRetry(ctx, ref.siret)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout,
				"Impossible de vérifier le statut de l'établissement "+ref.siret.String()+", la signature est bloquée")
		}
		if info.AdministrativeStatus == StatusClosed {
			return dErrors.Newf(dErrors.CodeCompanyClosed,
				"L'établissement %s est fermé selon le répertoire SIRENE et ne peut pas figurer sur un bordereau", ref.siret)
		}
		if info.IsDormant {
			return dErrors.Newf(dErrors.CodeCompanyDormant,
				"L'établissement %s est en sommeil et ne peut pas figurer sur un bordereau", ref.siret)
		}
	}
	return nil
}

// lookupWithRetry retries the directory once with backoff before failing
// closed. The lookup is idempotent, so retrying is safe. Repeated failures
// open the breaker; an open breaker drops the retry and backoff so a broken
// directory fails fast, and closes again after enough probes succeed.
func (g *Gate) lookupWithRetry(ctx context.Context, siret id.Siret) (*Info, error) {
	if g.breaker.IsOpen() {
		info, err := g.lookup(ctx, siret)
		if err != nil {
			g.breaker.RecordFailure()
			return nil, errDirectoryUnavailable
		}
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "company directory breaker closed", "breaker", g.breaker.Name())
		}
		return info, nil
	}

	info, err := g.lookup(ctx, siret)
	if err == nil {
		g.breaker.RecordSuccess()
		return info, nil
	}
	g.logger.WarnContext(ctx, "directory lookup failed, retrying once", "siret", siret, "error", err)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(g.retryDelay):
	}
	info, err = g.lookup(ctx, siret)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.ErrorContext(ctx, "company directory breaker opened", "breaker", g.breaker.Name())
		}
		return nil, err
	}
	g.breaker.RecordSuccess()
	return info, nil
}

func (g *Gate) lookup(ctx context.Context, siret id.Siret) (*Info, error) {
	if g.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.lookupTimeout)
		defer cancel()
	}
	return g.directory.Lookup(ctx, siret)
}

// companySlots enumerates every company-bearing slot with its lock state.
func companySlots(d *models.Document) []slotRef {
	refs := []slotRef{
		{siret: d.EmitterCompany.Siret, locked: d.IsSlotLocked(models.SignatureEmission)},
		{siret: d.WorkerCompany.Siret, locked: d.IsSlotLocked(models.SignatureWork)},
		{siret: d.DestinationCompany.Siret, locked: d.IsFieldLocked(models.FieldDestinationCompany)},
		{siret: d.BrokerCompany.Siret, locked: d.IsFieldLocked(models.FieldBrokerCompany)},
		{siret: d.TraderCompany.Siret, locked: d.IsFieldLocked(models.FieldTraderCompany)},
		{siret: d.EcoOrganisme.Siret, locked: d.IsSlotLocked(models.SignatureEmission)},
	}
	for _, c := range d.Intermediaries {
		refs = append(refs, slotRef{siret: c.Siret, locked: d.IsSlotLocked(models.SignatureEmission)})
	}
	for _, t := range d.Transporters {
		refs = append(refs, slotRef{siret: t.Company.Siret, locked: t.Signed()})
	}
	return refs
}

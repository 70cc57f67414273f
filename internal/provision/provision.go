// Package provision walks a catalog against the policy admin server and
// creates every service definition the server does not have yet. Each entry
// is processed on its own; one failure never stops the batch.
package provision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rangertools/rangerprov/internal/catalog"
	"github.com/rangertools/rangerprov/internal/metrics"
	"github.com/rangertools/rangerprov/internal/ranger"
	pkglog "github.com/rangertools/rangerprov/pkg/log"
)

// ServiceAPI is the slice of the admin client a provisioning pass needs.
// Narrowing it to the two calls keeps runs testable against a fake server.
type ServiceAPI interface {
	GetService(ctx context.Context, name string) (*catalog.Service, error)
	CreateService(ctx context.Context, svc catalog.Service) (*catalog.Service, error)
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithMetrics wires a recorder into the pass. A nil recorder is accepted
// and records nothing.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(p *Provisioner) {
		p.metrics = rec
	}
}

// WithLogger overrides the process-wide logger, mainly for tests.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Provisioner runs check-then-create passes over a catalog.
type Provisioner struct {
	api     ServiceAPI
	metrics *metrics.Recorder
	logger  *zap.SugaredLogger
}

// New returns a Provisioner backed by api.
func New(api ServiceAPI, opts ...Option) *Provisioner {
	p := &Provisioner{
		api:    api,
		logger: pkglog.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// exists reports whether the server already has a service under name. A
// malformed lookup response counts as absent, so the create that follows
// still gets attempted. Hard transport or server failures are returned.
func (p *Provisioner) exists(ctx context.Context, name string) (bool, error) {
	_, err := p.api.GetService(ctx, name)
	switch {
	case err == nil:
		p.metrics.Lookup(metrics.LookupPresent)
		return true, nil
	case errors.Is(err, ranger.ErrNotFound):
		p.metrics.Lookup(metrics.LookupAbsent)
		return false, nil
	case errors.Is(err, ranger.ErrMalformedResponse):
		p.metrics.Lookup(metrics.LookupMalformed)
		p.logger.Warnw("lookup response malformed, treating service as absent", "service", name)
		return false, nil
	default:
		p.metrics.Lookup(metrics.LookupError)
		return false, err
	}
}

// RegisterOne ensures a single catalog entry exists on the server and
// reports what happened. It never returns an error; failures are carried
// inside the Result so callers decide how to surface them.
func (p *Provisioner) RegisterOne(ctx context.Context, svc catalog.Service) Result {
	present, err := p.exists(ctx, svc.Name)
	if err != nil {
		return Result{Name: svc.Name, Outcome: Failed, Err: err}
	}
	if present {
		p.logger.Debugw("service already registered", "service", svc.Name)
		return Result{Name: svc.Name, Outcome: AlreadyExists}
	}

	if _, err := p.api.CreateService(ctx, svc); err != nil {
		p.metrics.Create(metrics.CreateFailed)
		return Result{Name: svc.Name, Outcome: Failed, Err: err}
	}
	p.metrics.Create(metrics.CreateOK)
	p.logger.Infow("service registered", "service", svc.Name, "type", svc.Type)
	return Result{Name: svc.Name, Outcome: Created}
}

// RegisterAll runs RegisterOne over the catalog in order and aggregates the
// results. A failed entry never stops the batch; only context cancellation
// does, between entries, leaving the report partial.
func (p *Provisioner) RegisterAll(ctx context.Context, services []catalog.Service) Report {
	p.metrics.SetCatalogSize(len(services))

	start := time.Now()
	report := Report{Results: make([]Result, 0, len(services))}
	for _, svc := range services {
		if ctx.Err() != nil {
			p.logger.Warnw("provisioning interrupted",
				"remaining", len(services)-len(report.Results))
			break
		}
		report.Results = append(report.Results, p.RegisterOne(ctx, svc))
	}
	report.Duration = time.Since(start)
	p.metrics.SetRunDuration(report.Duration)

	return report
}

// Presence is one entry of a read-only catalog survey.
type Presence struct {
	Name    string
	Present bool
	Err     error
}

// Survey reports which catalog entries the server already has without
// mutating anything. Like RegisterAll it stops between entries once ctx is
// cancelled.
func (p *Provisioner) Survey(ctx context.Context, services []catalog.Service) []Presence {
	out := make([]Presence, 0, len(services))
	for _, svc := range services {
		if ctx.Err() != nil {
			break
		}
		present, err := p.exists(ctx, svc.Name)
		out = append(out, Presence{Name: svc.Name, Present: present, Err: err})
	}
	return out
}

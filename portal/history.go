package portal

import (
	"context"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/history"
)

// historyView returns the history engine, creating it when needed. claim
// marks it mounted and reports whether it already was.
func (p *Portal) historyView(claim bool) (*history.Engine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		p.engine = history.NewEngine(p.client, p.session,
			history.WithLogger(p.logger),
			history.WithUnauthorizedHandler(p.expire))
		p.mounted = false
	}
	mounted := p.mounted
	if claim {
		p.mounted = true
	}
	return p.engine, mounted
}

// unmount lets the next visit retry Mount after it failed.
func (p *Portal) unmount(e *history.Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == e {
		p.mounted = false
	}
}

// mount loads the history view on first use. A non-nil initial is applied
// to that first record fetch.
func (p *Portal) mount(ctx context.Context, initial *client.Criteria) (*history.Engine, bool, error) {
	e, mounted := p.historyView(true)
	if mounted {
		return e, false, nil
	}
	var err error
	if initial != nil {
		err = e.MountWith(ctx, *initial)
	} else {
		err = e.Mount(ctx)
	}
	if err != nil {
		p.unmount(e)
		return e, true, err
	}
	return e, true, nil
}

// History opens the history view, loading issuer options on first use,
// and applies criteria when they differ from the active ones. A nil
// criteria keeps the active filters.
func (p *Portal) History(ctx context.Context, criteria *client.Criteria) (history.View, error) {
	e, fresh, err := p.mount(ctx, criteria)
	if err != nil || fresh {
		return e.View(), err
	}
	if criteria != nil && *criteria != e.Criteria() {
		if err := e.SetCriteria(ctx, *criteria); err != nil {
			return e.View(), err
		}
	}
	return e.View(), nil
}

// ClearFilters resets both filters on the history view.
func (p *Portal) ClearFilters(ctx context.Context) (history.View, error) {
	e, fresh, err := p.mount(ctx, &client.Criteria{})
	if err != nil || fresh {
		return e.View(), err
	}
	err = e.ClearFilters(ctx)
	return e.View(), err
}

// Export saves the history matching the active criteria in format.
func (p *Portal) Export(ctx context.Context, format client.ExportFormat) (history.Artifact, error) {
	e, _ := p.historyView(false)
	return p.exporter(e).Export(ctx, format)
}

// ExportCriteria saves the history matching criteria without touching the
// history view.
func (p *Portal) ExportCriteria(ctx context.Context, format client.ExportFormat, criteria client.Criteria) (history.Artifact, error) {
	return p.exporter(fixedCriteria(criteria)).Export(ctx, format)
}

func (p *Portal) exporter(criteria history.CriteriaSource) *history.Exporter {
	return history.NewExporter(p.client, p.session, criteria, p.saver,
		history.WithExportLogger(p.logger),
		history.WithExportMetrics(p.metrics),
		history.WithExportUnauthorizedHandler(p.expire))
}

type fixedCriteria client.Criteria

func (c fixedCriteria) Criteria() client.Criteria { return client.Criteria(c) }

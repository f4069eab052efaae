package portal

import (
	"context"

	"github.com/jmcleod/cardledger/session"
	"github.com/jmcleod/cardledger/upload"
)

// StagedFile describes one staged file.
type StagedFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// ResultView is the last committed upload result with its summary.
type ResultView struct {
	Summary string `json:"summary"`
	upload.Result
}

// DashboardView is a snapshot of the upload dashboard.
type DashboardView struct {
	User      *session.User `json:"user,omitempty"`
	DropState string        `json:"drop_state"`
	Accept    []string      `json:"accept"`
	Staged    []StagedFile  `json:"staged"`
	Busy      bool          `json:"busy"`
	Result    *ResultView   `json:"result,omitempty"`
}

func (p *Portal) dashboard() *upload.Submitter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitter == nil {
		p.submitter = upload.NewSubmitter(p.staging, p.client, p.session,
			upload.WithLogger(p.logger),
			upload.WithMetrics(p.metrics),
			upload.WithUnauthorizedHandler(p.expire))
	}
	return p.submitter
}

// Staging returns the staging area.
func (p *Portal) Staging() *upload.StagingArea { return p.staging }

// Pick resolves glob patterns to files on disk.
func (p *Portal) Pick(patterns ...string) ([]upload.File, error) {
	return p.picker.Pick(patterns...)
}

// Select replaces the staged batch through the file picker. Names the
// staging area refused are returned.
func (p *Portal) Select(files []upload.File) []string {
	return p.staging.Select(files)
}

// Drop replaces the staged batch through drag and drop.
func (p *Portal) Drop(files []upload.File) []string {
	return p.staging.Drop(files)
}

// Upload submits the staged batch.
func (p *Portal) Upload(ctx context.Context) (upload.Result, error) {
	return p.dashboard().Submit(ctx)
}

// Dashboard returns the current dashboard snapshot.
func (p *Portal) Dashboard() DashboardView {
	sub := p.dashboard()
	v := DashboardView{
		DropState: p.staging.State().String(),
		Accept:    p.staging.Accept(),
		Staged:    []StagedFile{},
		Busy:      sub.Busy(),
	}
	if u, ok := p.session.State().User(); ok {
		v.User = &u
	}
	for _, f := range p.staging.Files() {
		v.Staged = append(v.Staged, StagedFile{Name: f.Name(), Size: f.Size(), Pages: f.Pages()})
	}
	if res, ok := sub.Result(); ok {
		v.Result = &ResultView{Summary: res.Summary(), Result: res}
	}
	return v
}

package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/metrics"
)

const (
	exportBaseName        = "exported_data"
	exportFallbackMessage = "An error occurred while exporting the data."
)

// ExportError is the aggregate error for a failed export.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string { return exportFallbackMessage }

func (e *ExportError) Unwrap() error { return e.Err }

// ExportClient requests export payloads.
type ExportClient interface {
	Export(ctx context.Context, token string, format client.ExportFormat, criteria client.Criteria) (*client.Download, error)
}

// CriteriaSource yields the criteria currently scoping the history view.
type CriteriaSource interface {
	Criteria() client.Criteria
}

// Artifact describes a saved export.
type Artifact struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// Saver persists an export payload under name.
type Saver interface {
	Save(ctx context.Context, name string, r io.Reader) (Artifact, error)
}

// ArtifactName is the file name for an export in format.
func ArtifactName(format client.ExportFormat) string {
	return exportBaseName + "." + string(format)
}

// Exporter turns the engine's current criteria and a format into a saved
// artifact. Payloads are streamed straight into the Saver and released as
// soon as it returns.
type Exporter struct {
	client   ExportClient
	tokens   TokenSource
	criteria CriteriaSource
	saver    Saver
	logger   *slog.Logger
	metrics  *metrics.Recorder
	onAuth   func(error)

	outstanding atomic.Int64
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

func WithExportLogger(logger *slog.Logger) ExporterOption {
	return func(x *Exporter) { x.logger = logger }
}

func WithExportMetrics(m *metrics.Recorder) ExporterOption {
	return func(x *Exporter) { x.metrics = m }
}

// WithExportUnauthorizedHandler is called when the backend rejects the
// credential.
func WithExportUnauthorizedHandler(fn func(error)) ExporterOption {
	return func(x *Exporter) { x.onAuth = fn }
}

// NewExporter creates an Exporter scoped by criteria.
func NewExporter(c ExportClient, tokens TokenSource, criteria CriteriaSource, saver Saver, opts ...ExporterOption) *Exporter {
	x := &Exporter{
		client:   c,
		tokens:   tokens,
		criteria: criteria,
		saver:    saver,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = slog.Default()
	}
	x.logger = x.logger.With("component", "export")
	return x
}

// Export fetches the payload for format and saves it. There is no retry.
func (x *Exporter) Export(ctx context.Context, format client.ExportFormat) (Artifact, error) {
	format, err := client.ParseExportFormat(string(format))
	if err != nil {
		return Artifact{}, err
	}
	artifact, err := x.export(ctx, format)
	x.metrics.ObserveExport(string(format), err)
	if err != nil {
		x.logger.Warn("export failed", "format", format, "error", err)
		if errors.Is(err, client.ErrUnauthorized) && x.onAuth != nil {
			x.onAuth(err)
		}
		return Artifact{}, &ExportError{Err: err}
	}
	x.logger.Info("export saved", "format", format, "location", artifact.Location, "size", artifact.Size)
	return artifact, nil
}

func (x *Exporter) export(ctx context.Context, format client.ExportFormat) (Artifact, error) {
	token, ok := x.tokens.Token()
	if !ok {
		return Artifact{}, ErrSignedOut
	}
	dl, err := x.client.Export(ctx, token, format, x.criteria.Criteria())
	if err != nil {
		return Artifact{}, err
	}
	x.outstanding.Add(1)
	defer func() {
		dl.Body.Close()
		x.outstanding.Add(-1)
	}()
	return x.saver.Save(ctx, ArtifactName(format), dl.Body)
}

// Outstanding is the number of payloads currently held open.
func (x *Exporter) Outstanding() int {
	return int(x.outstanding.Load())
}

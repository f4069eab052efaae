package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
)

// uploadField is the repeated multipart field the backend reads files from.
const uploadField = "files"

// Part is one file to upload.
type Part interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Upload sends parts in one multipart request. The body is streamed, so
// files are read only while the request is in flight.
func (c *Client) Upload(ctx context.Context, token string, parts []Part) (UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, parts))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", nil, pr)
	if err != nil {
		pr.Close()
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	bearer(req, token)

	var out UploadResponse
	if err := c.doJSON("upload", req, &out); err != nil {
		return UploadResponse{}, err
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeParts(mw *multipart.Writer, parts []Part) error {
	for _, p := range parts {
		if err := writePart(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, p Part) error {
	name := p.Name()
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		uploadField, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", name, err)
	}
	r, err := p.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// History lists the caller's processed statements scoped by criteria.
func (c *Client) History(ctx context.Context, token string, criteria Criteria) ([]HistoryRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/history", criteria.Values(), nil)
	if err != nil {
		return nil, err
	}
	bearer(req, token)

	var out []HistoryRecord
	if err := c.doJSON("history", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download is a binary export payload. The caller must close Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Export requests the history scoped by criteria as a binary document.
//
// The backend expects the credential in the "authorization" query
// parameter on this endpoint instead of the Authorization header.
func (c *Client) Export(ctx context.Context, token string, format ExportFormat, criteria Criteria) (*Download, error) {
	if _, err := ParseExportFormat(string(format)); err != nil {
		return nil, err
	}
	q := criteria.Values()
	q.Set("authorization", "Bearer "+token)

	req, err := c.newRequest(ctx, http.MethodGet, "/data/export/"+url.PathEscape(string(format)), q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.do("export", req)
	if err != nil {
		return nil, err
	}
	return &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

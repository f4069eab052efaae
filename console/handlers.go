package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
	"github.com/jmcleod/cardledger/upload"
)

func decodeCredentials(w http.ResponseWriter, r *http.Request) (client.Credential, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return client.Credential{}, false
	}
	return client.Credential{Username: req.Username, Password: req.Password}, true
}

// Login handles POST /login and POST /admin/login. Both entry routes use
// the same sign-in; the landing route follows the derived role.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	cred, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if retryAfter := s.limiter.wait(cred.Username); retryAfter > 0 {
		s.audit.log(AuditLoginRateLimited, r)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := s.portal.Login(r.Context(), cred)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			s.limiter.failed(cred.Username)
		}
		mapError(w, err)
		return
	}
	s.limiter.succeeded(cred.Username)
	writeJSON(w, http.StatusOK, LoginResponse{User: u, Route: s.portal.Location()})
}

// Register handles POST /register.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	cred, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := s.portal.Register(r.Context(), cred); err != nil {
		mapError(w, err)
		return
	}
	s.audit.log(AuditRegister, r, slog.String("username", cred.Username))
	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: portal.RegisteredMessage,
		Route:   s.portal.Location(),
	})
}

// Logout handles POST /logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.Logout(); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Route: s.portal.Location()})
}

// Dashboard handles GET /dashboard.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	s.portal.Navigate(session.RouteDashboard)
	writeJSON(w, http.StatusOK, s.portal.Dashboard())
}

// Stage handles POST /dashboard/stage: the file picker path.
func (s *Server) Stage(w http.ResponseWriter, r *http.Request) {
	s.stage(w, r, s.portal.Select)
}

// Drop handles POST /dashboard/drop: the drag-and-drop path.
func (s *Server) Drop(w http.ResponseWriter, r *http.Request) {
	s.stage(w, r, s.portal.Drop)
}

func (s *Server) stage(w http.ResponseWriter, r *http.Request, apply func([]upload.File) []string) {
	files, err := s.filesFromRequest(w, r)
	if err != nil {
		mapError(w, err)
		return
	}
	rejected := apply(files)
	if rejected == nil {
		rejected = []string{}
	}
	writeJSON(w, http.StatusOK, StageResponse{Rejected: rejected, Dashboard: s.portal.Dashboard()})
}

// filesFromRequest reads staged files from a multipart body ("files"
// parts) or resolves the glob patterns of a JSON body.
func (s *Server) filesFromRequest(w http.ResponseWriter, r *http.Request) ([]upload.File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req StageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("%w: invalid request body", client.ErrInvalidValue)
		}
		if len(req.Patterns) == 0 {
			return nil, nil
		}
		files, err := s.portal.Pick(req.Patterns...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", client.ErrInvalidValue, err)
		}
		return files, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxStageBytes)
	if err := r.ParseMultipartForm(maxStageBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart body", client.ErrInvalidValue)
	}
	defer r.MultipartForm.RemoveAll()
	var files []upload.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, upload.FileFromBytes(fh.Filename, data))
	}
	return files, nil
}

// Upload handles POST /dashboard/upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.Upload(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	s.audit.log(AuditUpload, r,
		slog.Int("processed", len(res.Processed)),
		slog.Int("skipped", len(res.Skipped)))
	writeJSON(w, http.StatusOK, UploadResponse{Summary: res.Summary(), Result: res})
}

// History handles GET /history. The issuer and period query parameters,
// when either is present, replace the active criteria.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var criteria *client.Criteria
	if q.Has("issuer") || q.Has("period") {
		period, err := client.ParsePeriod(q.Get("period"))
		if err != nil {
			mapError(w, err)
			return
		}
		criteria = &client.Criteria{Issuer: q.Get("issuer"), Period: period}
	}
	s.portal.Navigate(session.RouteHistory)
	view, err := s.portal.History(r.Context(), criteria)
	if err != nil {
		s.historyError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClearFilters handles POST /history/clear.
func (s *Server) ClearFilters(w http.ResponseWriter, r *http.Request) {
	view, err := s.portal.ClearFilters(r.Context())
	if err != nil {
		s.historyError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// historyError answers a failed fetch. When the session survived, the
// view still carries the previous records and the error message.
func (s *Server) historyError(w http.ResponseWriter, r *http.Request, err error, view any) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		http.Redirect(w, r, string(s.portal.Location()), http.StatusSeeOther)
		return
	}
	if status == http.StatusConflict {
		mapError(w, err)
		return
	}
	writeJSON(w, status, view)
}

// Export handles GET /history/export/{format}.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	format, err := client.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		mapError(w, err)
		return
	}
	artifact, err := s.portal.Export(r.Context(), format)
	if err != nil {
		mapError(w, err)
		return
	}
	s.audit.log(AuditExport, r,
		slog.String("format", string(format)),
		slog.String("location", artifact.Location))
	writeJSON(w, http.StatusOK, artifact)
}

// AdminDashboard handles GET /admin/dashboard.
func (s *Server) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	s.portal.Navigate(session.RouteAdminDashboard)
	users, err := s.portal.Users(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// AdminAction handles POST /admin/users/{id}/{action}.
func (s *Server) AdminAction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	action, err := client.ParseAdminAction(chi.URLParam(r, "action"))
	if err != nil {
		mapError(w, err)
		return
	}
	res, users, err := s.portal.AdminAction(r.Context(), id, action)
	var adminErr *portal.AdminError
	if err != nil && !(errors.As(err, &adminErr) && adminErr.Applied) {
		mapError(w, err)
		return
	}
	s.audit.log(AuditAdminAction, r,
		slog.String("action", string(action)),
		slog.Int("user_id", id))
	if users == nil {
		users = []client.User{}
	}
	writeJSON(w, http.StatusOK, AdminActionResponse{Result: res, Users: users})
}

// Package fakebackend is an in-process statement backend for tests. It
// speaks the same REST API as the real service, keeps its state in memory
// and records every request it receives.
package fakebackend

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// SigningKey signs every token the fake issues.
var SigningKey = []byte("fakebackend-signing-key-32-bytes")

// Account is a user known to the fake.
type Account struct {
	ID       int
	Username string
	Password string
	Role     string
	Verified bool
	Status   string
}

// Record is one processed statement.
type Record struct {
	Owner      string
	Filename   string
	Issuer     string
	Data       map[string]string
	Hash       string
	UploadedAt time.Time
}

// Request is a recorded incoming request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

type failure struct {
	status int // 0 drops the connection
	detail string
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*Account
	nextID   int
	records  []Record
	requests []Request
	uploads  [][]string
	failures map[string][]failure
	holds    map[string]chan struct{}
	entered  map[string]chan struct{}
	now      func() time.Time
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: make(map[string]*Account),
		nextID:   1,
		failures: make(map[string][]failure),
		holds:    make(map[string]chan struct{}),
		entered:  make(map[string]chan struct{}),
		now:      time.Now,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth(false))
		r.Post("/files/upload", s.handleUpload)
		r.Get("/files/history", s.handleHistory)
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Post("/users/{id}/{action}", s.handleAdminAction)
		})
	})
	r.With(s.requireAuth(true)).Get("/data/export/{format}", s.handleExport)
	return r
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(username, password, role string, verified bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, role, verified)
}

func (s *Server) addUserLocked(username, password, role string, verified bool) int {
	id := s.nextID
	s.nextID++
	s.accounts[username] = &Account{
		ID:       id,
		Username: username,
		Password: password,
		Role:     role,
		Verified: verified,
		Status:   "active",
	}
	return id
}

// Account returns a copy of the named account.
func (s *Server) Account(username string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// Token mints a token for username with its current role.
func (s *Server) Token(username string) string {
	s.mu.Lock()
	role := ""
	if a, ok := s.accounts[username]; ok {
		role = a.Role
	}
	s.mu.Unlock()
	return MintToken(username, role, time.Hour)
}

// MintToken signs a token with SigningKey.
func MintToken(sub, role string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(SigningKey)
	if err != nil {
		panic(err)
	}
	return tok
}

// AddRecord stores a processed statement uploaded age ago.
func (s *Server) AddRecord(owner, filename, issuer string, age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{
		Owner:      owner,
		Filename:   filename,
		Issuer:     issuer,
		Data:       map[string]string{"issuer": issuer, "last_4_digits": "N/A"},
		Hash:       filename,
		UploadedAt: s.now().Add(-age),
	})
}

// Records returns a copy of the stored records.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Requests returns the requests received so far for path ("" for all).
func (s *Server) Requests(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Uploads returns the file names of every upload request, in order.
func (s *Server) Uploads() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.uploads))
	for i, u := range s.uploads {
		out[i] = append([]string(nil), u...)
	}
	return out
}

// Fail makes the next request to path fail with status and a detail body.
// Status 0 drops the connection without a response.
func (s *Server) Fail(path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], failure{status: status, detail: detail})
}

// Hold blocks requests to path until release is called. entered is closed
// when the first held request arrives.
func (s *Server) Hold(path string) (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{})
	s.holds[path] = gate
	s.entered[path] = in
	var once sync.Once
	return in, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, path)
			delete(s.entered, path)
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		gate := s.holds[r.URL.Path]
		in := s.entered[r.URL.Path]
		if in != nil {
			delete(s.entered, r.URL.Path)
		}
		s.mu.Unlock()

		if in != nil {
			close(in)
		}
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var f *failure
		if q := s.failures[r.URL.Path]; len(q) > 0 {
			f = &q[0]
			s.failures[r.URL.Path] = q[1:]
		}
		s.mu.Unlock()

		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if f.status == 0 {
			hj, ok := w.(http.Hijacker)
			if ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			f.status = http.StatusBadGateway
		}
		writeDetail(w, f.status, f.detail)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type ctxKey struct{}

func (s *Server) requireAuth(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if allowQuery {
				if q := r.URL.Query().Get("authorization"); q != "" {
					raw = strings.TrimPrefix(q, "Bearer ")
				}
			}
			if raw == "" {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			var claims jwt.RegisteredClaims
			_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return SigningKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}
			s.mu.Lock()
			acct, ok := s.accounts[claims.Subject]
			var snapshot Account
			if ok {
				snapshot = *acct
			}
			s.mu.Unlock()
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccount(r, snapshot)))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct := accountFrom(r)
		if acct.Role != "admin" && acct.Role != "super_admin" {
			writeDetail(w, http.StatusForbidden, "Not enough permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "field required"}},
		})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	s.addUserLocked(in.Username, in.Password, "user", false)
	writeJSON(w, http.StatusOK, map[string]string{"username": in.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	s.mu.Lock()
	acct, ok := s.accounts[username]
	valid := ok && acct.Password == password
	s.mu.Unlock()
	if !valid {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": s.Token(username),
		"token_type":   "bearer",
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]map[string]any, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, map[string]any{
			"id":          a.ID,
			"username":    a.Username,
			"role":        a.Role,
			"is_verified": a.Verified,
			"status":      a.Status,
		})
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i]["id"].(int) < users[j]["id"].(int) })
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var target *Account
	for _, a := range s.accounts {
		if a.ID == id {
			target = a
		}
	}
	if target == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	switch chi.URLParam(r, "action") {
	case "verify":
		target.Verified = true
	case "promote":
		target.Role = "admin"
	case "demote":
		target.Role = "user"
	case "toggle-suspend":
		if target.Status == "suspended" {
			target.Status = "active"
		} else {
			target.Status = "suspended"
		}
	case "reset-password":
		target.Password = fmt.Sprintf("reset-%d", target.ID)
		writeJSON(w, http.StatusOK, map[string]string{"new_password": target.Password})
		return
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

var issuers = []struct{ marker, name string }{
	{"HDFC", "HDFC"},
	{"ICICI", "ICICI"},
	{"SBI", "SBI"},
	{"Axis", "Axis Bank"},
	{"AMEX", "American Express"},
}

func detectIssuer(content []byte) string {
	for _, iss := range issuers {
		if bytes.Contains(content, []byte(iss.marker)) {
			return iss.name
		}
	}
	return "Unknown"
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	if !acct.Verified {
		writeDetail(w, http.StatusForbidden, "Your account is not verified. Please contact an admin to enable file uploads.")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]

	s.mu.Lock()
	s.uploads = append(s.uploads, filenames(headers))
	s.mu.Unlock()

	processed := []map[string]any{}
	skipped := []string{}
	var added []Record
	seen := map[string]bool{}

	for _, fh := range headers {
		if fh.Header.Get("Content-Type") != "application/pdf" {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("File '%s' is not a PDF.", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "unreadable file")
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "unreadable file")
			return
		}
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])
		if seen[hash] || s.hasHash(acct.Username, hash) {
			skipped = append(skipped, fh.Filename)
			continue
		}
		seen[hash] = true
		issuer := detectIssuer(content)
		data := map[string]string{"issuer": issuer, "last_4_digits": "N/A", "total_balance": "N/A"}
		added = append(added, Record{
			Owner:      acct.Username,
			Filename:   fh.Filename,
			Issuer:     issuer,
			Data:       data,
			Hash:       hash,
			UploadedAt: s.now(),
		})
		processed = append(processed, map[string]any{"filename": fh.Filename, "issuer": issuer, "data": data})
	}

	s.mu.Lock()
	s.records = append(s.records, added...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"processed": processed, "skipped": skipped})
}

func (s *Server) hasHash(owner, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Owner == owner && rec.Hash == hash {
			return true
		}
	}
	return false
}

func filenames(headers []*multipart.FileHeader) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		out = append(out, h.Filename)
	}
	return out
}

var periodWindows = map[string]time.Duration{
	"day":   24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
	"year":  365 * 24 * time.Hour,
}

func (s *Server) filtered(owner string, q url.Values) []Record {
	issuer, period := q.Get("issuer"), q.Get("period")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	now := s.now()
	for _, rec := range s.records {
		if rec.Owner != owner {
			continue
		}
		if issuer != "" && rec.Issuer != issuer {
			continue
		}
		if window, ok := periodWindows[period]; ok && rec.UploadedAt.Before(now.Add(-window)) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs := s.filtered(accountFrom(r).Username, r.URL.Query())
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{"filename": rec.Filename, "issuer": rec.Issuer, "data": rec.Data})
	}
	writeJSON(w, http.StatusOK, out)
}

var exportTypes = map[string]string{
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ExportBody is the payload the fake returns for an export.
func ExportBody(format string, count int) string {
	return fmt.Sprintf("export format=%s records=%d", format, count)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	format := chi.URLParam(r, "format")
	ct, ok := exportTypes[format]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	if !acct.Verified {
		writeDetail(w, http.StatusForbidden, "Your account is not verified. Please contact an admin to enable data export.")
		return
	}
	recs := s.filtered(acct.Username, r.URL.Query())
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename=export."+format)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ExportBody(format, len(recs)))
}

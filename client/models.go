package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Credential is a username/password pair. It is never persisted.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is an account as listed by the admin endpoint.
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	Status     string `json:"status,omitempty"`
}

// AdminAction is an account operation available to administrators.
type AdminAction string

const (
	ActionVerify        AdminAction = "verify"
	ActionPromote       AdminAction = "promote"
	ActionDemote        AdminAction = "demote"
	ActionToggleSuspend AdminAction = "toggle-suspend"
	ActionResetPassword AdminAction = "reset-password"
)

// AdminActions lists every AdminAction.
var AdminActions = []AdminAction{ActionVerify, ActionPromote, ActionDemote, ActionToggleSuspend, ActionResetPassword}

// ParseAdminAction validates s.
func ParseAdminAction(s string) (AdminAction, error) {
	for _, a := range AdminActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown admin action %q", ErrInvalidValue, s)
}

// ActionResult is the body of a successful admin action.
type ActionResult struct {
	Message     string `json:"message,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

// Fields holds the values extracted from one statement. Non-string values
// sent by the backend are kept in their JSON text form.
type Fields map[string]string

func (f *Fields) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			out[k] = ""
			continue
		}
		out[k] = string(v)
	}
	*f = out
	return nil
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProcessedFile is one newly processed statement in an upload response.
type ProcessedFile struct {
	Filename string `json:"filename"`
	Issuer   string `json:"issuer"`
	Data     Fields `json:"data"`
}

// UploadResponse is the raw backend response to an upload.
type UploadResponse struct {
	Processed []ProcessedFile `json:"processed"`
	Skipped   []string        `json:"skipped"`
}

// HistoryRecord is one previously processed statement. Records arrive
// newest first.
type HistoryRecord struct {
	Filename string `json:"filename"`
	Issuer   string `json:"issuer"`
	Data     Fields `json:"data"`
}

// Period is a relative time window for history filtering.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Periods lists every Period in display order.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodYear}

// ParsePeriod validates s. The empty string means unfiltered.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return "", nil
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown period %q", ErrInvalidValue, s)
}

// Label is the human-readable name of the period.
func (p Period) Label() string {
	switch p {
	case PeriodDay:
		return "Last 24 Hours"
	case PeriodWeek:
		return "Last Week"
	case PeriodMonth:
		return "Last Month"
	case PeriodYear:
		return "Last Year"
	}
	return ""
}

// Criteria scopes both the history listing and exports. An empty field
// means unfiltered on that dimension.
type Criteria struct {
	Issuer string `json:"issuer,omitempty"`
	Period Period `json:"period,omitempty"`
}

// IsZero reports whether no filter is active.
func (c Criteria) IsZero() bool {
	return c.Issuer == "" && c.Period == ""
}

// Values encodes the criteria as query parameters, omitting empty fields.
func (c Criteria) Values() url.Values {
	v := url.Values{}
	if c.Issuer != "" {
		v.Set("issuer", c.Issuer)
	}
	if c.Period != "" {
		v.Set("period", string(c.Period))
	}
	return v
}

// Summary describes the active filters, e.g. "Bank: HDFC, Period: Last Week".
func (c Criteria) Summary() string {
	if c.IsZero() {
		return "None"
	}
	var parts []string
	if c.Issuer != "" {
		parts = append(parts, "Bank: "+c.Issuer)
	}
	if c.Period != "" {
		parts = append(parts, "Period: "+c.Period.Label())
	}
	return strings.Join(parts, ", ")
}

// ExportFormat is a supported export payload type.
type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatPDF  ExportFormat = "pdf"
	FormatDOCX ExportFormat = "docx"
)

// ExportFormats lists every ExportFormat.
var ExportFormats = []ExportFormat{FormatXLSX, FormatPDF, FormatDOCX}

// ParseExportFormat validates s case-insensitively.
func ParseExportFormat(s string) (ExportFormat, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "."))
	for _, f := range ExportFormats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported export format %q", ErrInvalidValue, s)
}

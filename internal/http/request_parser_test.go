package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"famfunds/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount core.Money `json:"amount"`
		Note   string     `json:"note"`
	}

	tests := []struct {
		name          string
		body          string
		wantMalformed bool
		wantInvalid   bool
	}{
		{"valid", `{"amount":"12.34","note":"x"}`, false, false},
		{"number amount", `{"amount":12.34}`, false, false},
		{"empty", ``, true, false},
		{"syntax", `{"amount":}`, true, false},
		{"truncated", `{"amount":"1"`, true, false},
		{"wrong type", `{"note":5}`, true, false},
		{"unknown field", `{"amount":"1","extra":true}`, true, false},
		{"two objects", `{"amount":"1"}{"amount":"2"}`, true, false},
		{"bad amount", `{"amount":"twelve"}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)

			var m *malformedError
			if got := errors.As(err, &m); got != tt.wantMalformed {
				t.Errorf("malformed = %v, want %v (err %v)", got, tt.wantMalformed, err)
			}
			if got := errors.Is(err, core.ErrInvalidArgument); got != tt.wantInvalid {
				t.Errorf("invalid argument = %v, want %v (err %v)", got, tt.wantInvalid, err)
			}
			if err == nil && tt.name == "valid" && p.Amount != core.Cents(12_34) {
				t.Errorf("amount = %v", p.Amount)
			}
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	body := `{"note":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var p struct {
		Note string `json:"note"`
	}
	var m *malformedError
	if err := decodeJSON(httptest.NewRecorder(), r, &p); !errors.As(err, &m) {
		t.Errorf("decodeJSON() error = %v, want malformed", err)
	}
}

func TestParseAsOf(t *testing.T) {
	now := time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skip("tzdata not available")
	}

	tests := []struct {
		name    string
		value   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{"default", "", time.UTC, now, false},
		{"rfc3339", "2024-10-01T08:00:00Z", time.UTC, time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC), false},
		{"date is end of day", "2024-10-11", time.UTC, time.Date(2024, 10, 11, 23, 59, 59, 999999999, time.UTC), false},
		{"date in ledger zone", "2024-10-11", rome, time.Date(2024, 10, 11, 23, 59, 59, 999999999, rome), false},
		{"garbage", "next week", time.UTC, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAsOf(url.Values{"asOf": {tt.value}}, now, tt.loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAsOf() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseAsOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatusAndFilter(t *testing.T) {
	if s, err := parseStatus(url.Values{"status": {"Pending"}}); err != nil || s != core.StatusPending {
		t.Errorf("parseStatus(Pending) = %q, %v", s, err)
	}
	if _, err := parseStatus(url.Values{"status": {"lost"}}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("parseStatus(lost) error = %v", err)
	}

	txs := []core.Transaction{{ID: "a", Status: core.StatusCompleted}, {ID: "b", Status: core.StatusPending}}
	if got := filterStatus(txs, core.StatusPending); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("filterStatus() = %+v", got)
	}
	if got := filterStatus(txs, core.StatusDeclined); got == nil || len(got) != 0 {
		t.Errorf("filterStatus(declined) = %#v, want empty non-nil", got)
	}
	if got := filterStatus(txs, ""); len(got) != 2 {
		t.Errorf("filterStatus(\"\") = %+v", got)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Pizza  ", "Pizza"},
		{"Bus\x00 pass\x07", "Bus pass"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

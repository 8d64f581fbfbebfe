// Package http exposes the ledger as a JSON API.
//
// This file implements request body decoding and query parameter parsing.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"famfunds/internal/core"
)

const maxBodyBytes = 1 << 20

// malformedError marks a body that is not the JSON the endpoint expects.
type malformedError struct {
	msg string
}

func (e *malformedError) Error() string { return e.msg }

func malformed(format string, args ...any) error {
	return &malformedError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a single JSON object into dst. Syntax problems, unknown
// fields and oversize bodies yield a malformedError; invalid values such as a
// negative amount keep their domain error so they map to 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.Is(err, core.ErrInvalidArgument):
			return err
		case errors.Is(err, io.EOF):
			return malformed("request body is empty")
		case errors.As(err, &syntaxErr):
			return malformed("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return malformed("field %q has the wrong type", typeErr.Field)
		case errors.As(err, &maxErr):
			return malformed("request body exceeds %d bytes", maxErr.Limit)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return malformed("%s", strings.TrimPrefix(err.Error(), "json: "))
		default:
			return malformed("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return malformed("request body must hold a single JSON object")
	}
	return nil
}

// parseAsOf reads the optional asOf parameter. It accepts RFC 3339 or a
// plain date, which means the end of that day in loc.
func parseAsOf(q url.Values, now time.Time, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(q.Get("asOf"))
	if v == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: asOf must be RFC 3339 or YYYY-MM-DD", core.ErrInvalidArgument)
	}
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// parseStatus reads the optional status filter.
func parseStatus(q url.Values) (core.TransactionStatus, error) {
	v := core.TransactionStatus(strings.ToLower(strings.TrimSpace(q.Get("status"))))
	if v == "" {
		return "", nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", core.ErrInvalidArgument, v)
	}
	return v, nil
}

// filterStatus keeps transactions with the given status; empty keeps all.
func filterStatus(txs []core.Transaction, status core.TransactionStatus) []core.Transaction {
	if status == "" {
		return txs
	}
	out := txs[:0:0]
	for _, tx := range txs {
		if tx.Status == status {
			out = append(out, tx)
		}
	}
	return out
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

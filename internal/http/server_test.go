package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
	"famfunds/internal/seed"
)

var testNow = time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *ledger.Engine) {
	t.Helper()
	e := ledger.New(ledger.WithClock(func() time.Time { return testNow }))
	if err := seed.Demo(context.Background(), e); err != nil {
		t.Fatalf("seed: %v", err)
	}
	opts.Now = func() time.Time { return testNow }
	s, err := NewServer(":0", e, opts)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, e
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

func TestHealthAndReady(t *testing.T) {
	failing := errors.New("db down")
	var readyErr error
	s, _ := newTestServer(t, Options{Ready: func(context.Context) error { return readyErr }})

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
	readyErr = failing
	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz when failing = %d, want 503", rec.Code)
	}
}

func TestRoutingErrors(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != CodeNotFound {
		t.Errorf("unknown route = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPut, "/api/members", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method = %d, want 405", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}
}

func TestMembers(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	members := decode[[]core.Member](t, do(t, s, http.MethodGet, "/api/members", ""))
	if len(members) != 4 {
		t.Fatalf("members = %d, want 4", len(members))
	}

	rec := do(t, s, http.MethodPost, "/api/members", `{"name":"Grandma Rose","role":"guardian","age":70}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create member = %d %s", rec.Code, rec.Body.String())
	}
	m := decode[core.Member](t, rec)
	if !strings.HasPrefix(m.ID, "mem-") || rec.Header().Get("Location") != "/api/members/"+m.ID {
		t.Errorf("created member = %+v, location %q", m, rec.Header().Get("Location"))
	}

	rec = do(t, s, http.MethodPatch, "/api/members/"+m.ID, `{"name":"Rose"}`)
	if got := decode[core.Member](t, rec); rec.Code != http.StatusOK || got.Name != "Rose" {
		t.Errorf("update member = %d %+v", rec.Code, got)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad role", `{"name":"X","role":"pet"}`, http.StatusUnprocessableEntity},
		{"empty name", `{"name":"  ","role":"child"}`, http.StatusUnprocessableEntity},
		{"duplicate id", `{"id":"member-1","name":"X","role":"child"}`, http.StatusConflict},
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"unknown field", `{"name":"X","role":"child","pin":1}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/api/members", tt.body); rec.Code != tt.want {
				t.Errorf("code = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if rec := do(t, s, http.MethodGet, "/api/members/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown member = %d", rec.Code)
	}
}

func TestAccountLifecycle(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/members", `{"id":"member-5","name":"Ava","role":"child","age":9}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create member = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/accounts", `{"memberId":"member-5","initialBalance":"20.00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision = %d %s", rec.Code, rec.Body.String())
	}
	acct := decode[core.SubAccount](t, rec)
	if acct.SpendLimit != core.Cents(100_00) || acct.SpendPeriod != core.Weekly || acct.PermissionLevel != core.LevelLimited {
		t.Errorf("defaults not applied: %+v", acct)
	}

	if rec := do(t, s, http.MethodPost, "/api/accounts", `{"memberId":"member-5"}`); rec.Code != http.StatusConflict {
		t.Errorf("second account = %d, want 409", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/accounts", `{"memberId":"ghost"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown member = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/accounts", `{"memberId":"member-5","initialBalance":"-1"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative balance = %d, want 422", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/accounts", `{"memberId":"member-5","spendLimit":"0"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero spend limit = %d, want 422", rec.Code)
	}

	list := decode[[]core.SubAccount](t, do(t, s, http.MethodGet, "/api/accounts?memberId=member-5", ""))
	if len(list) != 1 || list[0].ID != acct.ID {
		t.Errorf("by member = %+v", list)
	}

	rec = do(t, s, http.MethodPatch, "/api/accounts/"+acct.ID, `{"permissionLevel":"full"}`)
	if got := decode[core.SubAccount](t, rec); got.PermissionLevel != core.LevelFull {
		t.Errorf("patch = %d %+v", rec.Code, got)
	}

	rec = do(t, s, http.MethodPost, "/api/accounts/"+acct.ID+"/deactivate", "")
	if got := decode[core.SubAccount](t, rec); got.IsActive {
		t.Error("deactivate left account active")
	}
	rec = do(t, s, http.MethodPost, "/api/accounts/"+acct.ID+"/transactions", `{"amount":"1.00","type":"debit","category":"food"}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != CodeAccountInactive {
		t.Errorf("propose on inactive = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/api/accounts/"+acct.ID+"/activate", "")
	if got := decode[core.SubAccount](t, rec); !got.IsActive {
		t.Error("activate left account inactive")
	}

	if rec := do(t, s, http.MethodDelete, "/api/accounts/"+acct.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/accounts/"+acct.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/accounts/sub-3", ""); rec.Code != http.StatusConflict {
		t.Errorf("delete with history = %d, want 409", rec.Code)
	}
}

func TestSpendLimitAndPermissions(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	view := decode[ledger.SpendLimitView](t, do(t, s, http.MethodGet, "/api/accounts/sub-3/spend-limit", ""))
	if view.Spent != core.Cents(45_99) || view.Remaining != core.Cents(154_01) {
		t.Errorf("sub-3 view = %+v", view)
	}
	// The previous week only had the bus pass.
	view = decode[ledger.SpendLimitView](t, do(t, s, http.MethodGet, "/api/accounts/sub-3/spend-limit?asOf=2024-10-11", ""))
	if view.Spent != core.Cents(15_00) {
		t.Errorf("sub-3 spent week of Oct 6 = %v, want 15.00", view.Spent)
	}
	if rec := do(t, s, http.MethodGet, "/api/accounts/sub-3/spend-limit?asOf=yesterday", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad asOf = %d", rec.Code)
	}

	rec := do(t, s, http.MethodPut, "/api/accounts/sub-3/spend-limit", `{"limit":"500","period":"monthly"}`)
	view = decode[ledger.SpendLimitView](t, rec)
	if rec.Code != http.StatusOK || view.Period != core.Monthly || view.Spent != core.Cents(60_99) {
		t.Errorf("set limit = %d %+v", rec.Code, view)
	}
	if rec := do(t, s, http.MethodPut, "/api/accounts/sub-3/spend-limit", `{"limit":"0","period":"monthly"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero limit = %d, want 422", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/accounts/sub-3/spend-limit", `{"limit":"10","period":"yearly"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad period = %d, want 422", rec.Code)
	}

	p := decode[core.PermissionProfile](t, do(t, s, http.MethodGet, "/api/accounts/sub-4/permissions", ""))
	if !p.RequiresApproval || p.ApprovalThreshold != core.Cents(25_00) {
		t.Errorf("sub-4 permissions = %+v", p)
	}
	rec = do(t, s, http.MethodPatch, "/api/accounts/sub-4/permissions", `{"approvalThreshold":"80.00"}`)
	if p := decode[core.PermissionProfile](t, rec); p.ApprovalThreshold != core.Cents(80_00) || !p.RequiresApproval {
		t.Errorf("patched permissions = %+v", p)
	}
	if rec := do(t, s, http.MethodGet, "/api/accounts/ghost/permissions", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown permissions = %d", rec.Code)
	}
}

func TestAdjustments(t *testing.T) {
	s, e := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/accounts/sub-4/adjustments", `{"delta":"-10.50","note":"lost card fee"}`)
	got := decode[adjustmentResponse](t, rec)
	if rec.Code != http.StatusOK || got.Balance != core.Cents(139_50) {
		t.Errorf("adjust = %d %+v", rec.Code, got)
	}
	if acct, _ := e.Account("sub-4"); acct.Balance != core.Cents(139_50) {
		t.Errorf("engine balance = %v", acct.Balance)
	}
	if rec := do(t, s, http.MethodPost, "/api/accounts/sub-4/adjustments", `{"delta":"0"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero delta = %d, want 422", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/accounts/ghost/adjustments", `{"delta":"1"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account = %d, want 404", rec.Code)
	}
}

func TestProposeOutcomes(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus core.TransactionStatus
		wantReason string
	}{
		{"small debit completes", `{"amount":"20.00","type":"debit","category":"food","description":"Pizza"}`, http.StatusCreated, core.StatusCompleted, ""},
		{"over threshold waits", `{"amount":"60.00","type":"debit","category":"shopping"}`, http.StatusCreated, core.StatusPending, core.ReasonApprovalThreshold},
		{"over balance declines", `{"amount":"400.00","type":"debit","category":"shopping"}`, http.StatusCreated, core.StatusDeclined, core.ReasonInsufficientFunds},
		{"credit completes", `{"amount":"25.00","type":"credit","category":"allowance"}`, http.StatusCreated, core.StatusCompleted, ""},
		{"zero amount", `{"amount":"0","type":"debit","category":"food"}`, http.StatusUnprocessableEntity, "", ""},
		{"bad type", `{"amount":"1","type":"refund","category":"food"}`, http.StatusUnprocessableEntity, "", ""},
		{"number amount", `{"amount":12.5,"type":"debit","category":"food"}`, http.StatusCreated, core.StatusCompleted, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/accounts/sub-3/transactions", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantStatus == "" {
				return
			}
			tx := decode[core.Transaction](t, rec)
			if tx.Status != tt.wantStatus || tx.Metadata.Reason != tt.wantReason || tx.SubAccountID != "sub-3" {
				t.Errorf("tx = %+v", tx)
			}
		})
	}

	if rec := do(t, s, http.MethodPost, "/api/accounts/ghost/transactions", `{"amount":"1","type":"debit","category":"food"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account = %d, want 404", rec.Code)
	}
}

func TestApproveAndDecline(t *testing.T) {
	s, e := newTestServer(t, Options{})

	pending := decode[[]core.Transaction](t, do(t, s, http.MethodGet, "/api/transactions?status=pending", ""))
	if len(pending) != 1 || pending[0].ID != "txn-5" {
		t.Fatalf("pending = %+v", pending)
	}

	rec := do(t, s, http.MethodPost, "/api/transactions/txn-5/approve", "")
	tx := decode[core.Transaction](t, rec)
	if rec.Code != http.StatusOK || tx.Status != core.StatusCompleted || tx.Metadata.Resolution != core.ResolutionApproved {
		t.Errorf("approve = %d %+v", rec.Code, tx)
	}
	if acct, _ := e.Account("sub-4"); acct.Balance != core.Cents(90_00) {
		t.Errorf("sub-4 balance = %v, want 90.00", acct.Balance)
	}

	rec = do(t, s, http.MethodPost, "/api/transactions/txn-5/decline", "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != CodeInvalidState {
		t.Errorf("decline resolved = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodPost, "/api/transactions/ghost/approve", ""); rec.Code != http.StatusNotFound {
		t.Errorf("approve unknown = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/accounts/sub-4/transactions", `{"amount":"30","type":"debit","category":"games"}`)
	fresh := decode[core.Transaction](t, rec)
	if fresh.Status != core.StatusPending {
		t.Fatalf("fresh = %+v", fresh)
	}
	rec = do(t, s, http.MethodPost, "/api/transactions/"+fresh.ID+"/decline", "")
	if tx := decode[core.Transaction](t, rec); tx.Status != core.StatusDeclined || tx.Metadata.Resolution != core.ResolutionDeclined {
		t.Errorf("decline = %+v", tx)
	}
}

func TestTransactionQueries(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	all := decode[[]core.Transaction](t, do(t, s, http.MethodGet, "/api/transactions", ""))
	if len(all) != 7 || all[0].ID != "txn-5" || all[len(all)-1].ID != "txn-7" {
		t.Errorf("all order = %v", ids(all))
	}

	sub3 := decode[[]core.Transaction](t, do(t, s, http.MethodGet, "/api/accounts/sub-3/transactions", ""))
	if got := ids(sub3); strings.Join(got, ",") != "txn-1,txn-3,txn-7" {
		t.Errorf("sub-3 = %v", got)
	}
	credits := decode[[]core.Transaction](t, do(t, s, http.MethodGet, "/api/transactions?subAccountId=sub-4&status=completed", ""))
	if got := ids(credits); strings.Join(got, ",") != "txn-2" {
		t.Errorf("sub-4 completed = %v", got)
	}

	if rec := do(t, s, http.MethodGet, "/api/accounts/ghost/transactions", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown account log = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/transactions?status=lost", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/transactions/txn-2", ""); rec.Code != http.StatusOK {
		t.Errorf("get txn-2 = %d", rec.Code)
	}
}

func TestOverview(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	ov := decode[ledger.Overview](t, do(t, s, http.MethodGet, "/api/overview", ""))
	if ov.TotalBalance != core.Cents(10_000_00) {
		t.Errorf("total balance = %v, want 10000.00", ov.TotalBalance)
	}
	if ov.PendingCount != 1 || len(ov.Accounts) != 4 {
		t.Errorf("overview = %+v", ov)
	}
	// Completed debits in the 30 days up to now: 45.99 + 12.50 + 125.75 + 89.99 + 15.00.
	if ov.RecentSpend != core.Cents(289_23) {
		t.Errorf("recent spend = %v, want 289.23", ov.RecentSpend)
	}
}

func TestIdempotentPropose(t *testing.T) {
	s, e := newTestServer(t, Options{})
	body := `{"amount":"10.00","type":"debit","category":"food"}`

	first := do(t, s, http.MethodPost, "/api/accounts/sub-3/transactions", body, IdempotencyHeader, "k1")
	second := do(t, s, http.MethodPost, "/api/accounts/sub-3/transactions", body, IdempotencyHeader, "k1")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replay differs:\n%s\n%s", first.Body, second.Body)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("replay header missing")
	}
	if acct, _ := e.Account("sub-3"); acct.Balance != core.Cents(340_00) {
		t.Errorf("balance = %v, want one debit applied", acct.Balance)
	}

	rec := do(t, s, http.MethodPost, "/api/accounts/sub-3/transactions", `{"amount":"11.00","type":"debit","category":"food"}`, IdempotencyHeader, "k1")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("reused key = %d, want 422", rec.Code)
	}

	// Same key on another account is a different request.
	rec = do(t, s, http.MethodPost, "/api/accounts/sub-1/transactions", body, IdempotencyHeader, "k1")
	if rec.Code != http.StatusCreated || rec.Header().Get("Idempotent-Replayed") != "" {
		t.Errorf("other account = %d replay=%q", rec.Code, rec.Header().Get("Idempotent-Replayed"))
	}
}

func TestIdempotentProposeConcurrent(t *testing.T) {
	s, e := newTestServer(t, Options{})
	body := `{"amount":"5.00","type":"debit","category":"snacks"}`

	var wg sync.WaitGroup
	bodies := make([]string, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i] = do(t, s, http.MethodPost, "/api/accounts/sub-3/transactions", body, IdempotencyHeader, "race").Body.String()
		}(i)
	}
	wg.Wait()

	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Fatalf("responses differ:\n%s\n%s", bodies[0], b)
		}
	}
	if acct, _ := e.Account("sub-3"); acct.Balance != core.Cents(345_00) {
		t.Errorf("balance = %v, want exactly one 5.00 debit", acct.Balance)
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodGet, "/api/accounts", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := do(t, s, http.MethodGet, "/api/accounts", "")
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != CodeRateLimited {
		t.Errorf("third request = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz is rate limited: %d", rec.Code)
	}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestIdempotentReplayKeepsLocation(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	body := `{"amount":"1.00","type":"debit","category":"food"}`

	first := do(t, s, http.MethodPost, "/api/accounts/sub-1/transactions", body, IdempotencyHeader, "loc")
	second := do(t, s, http.MethodPost, "/api/accounts/sub-1/transactions", body, IdempotencyHeader, "loc")
	if loc := first.Header().Get("Location"); loc == "" || second.Header().Get("Location") != loc {
		t.Errorf("Location = %q then %q", loc, second.Header().Get("Location"))
	}
}

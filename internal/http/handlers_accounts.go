package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
)

type spendLimitRequest struct {
	Limit  core.Money       `json:"limit"`
	Period core.SpendPeriod `json:"period"`
}

type adjustmentRequest struct {
	Delta core.Money `json:"delta"`
	Note  string     `json:"note,omitempty"`
}

type adjustmentResponse struct {
	SubAccountID string     `json:"subAccountId"`
	Delta        core.Money `json:"delta"`
	Balance      core.Money `json:"balance"`
}

// handleListAccounts lists all sub-accounts, or the one owned by ?memberId=.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.URL.Query().Get("memberId"))
	if memberID == "" {
		NewResponse().JSON(s.ledger.Accounts()).Write(w)
		return
	}

	acct, err := s.ledger.AccountByMember(memberID)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewResponse().JSON([]core.SubAccount{acct}).Write(w)
}

func (s *Server) handleProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req ledger.ProvisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	acct, err := s.ledger.Provision(r.Context(), req)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/accounts/"+acct.ID).
		JSON(acct).
		Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Account(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(acct).Write(w)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var u ledger.AccountUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.writeAccount(w, r, applog.OpUpdate)(s.ledger.UpdateAccount(r.Context(), mux.Vars(r)["id"], u))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.writeAccount(w, r, applog.OpUpdate)(s.ledger.Activate(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.writeAccount(w, r, applog.OpUpdate)(s.ledger.Deactivate(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) writeAccount(w http.ResponseWriter, r *http.Request, op string) func(core.SubAccount, error) {
	return func(acct core.SubAccount, err error) {
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		NewResponse().JSON(acct).Write(w)
	}
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed, err := s.ledger.Remove(r.Context(), id)
	if err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	if !removed {
		NotFoundError("sub-account not found: " + id).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetSpendLimit(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query(), s.now(), s.ledger.Location())
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	view, err := s.ledger.SpendLimit(mux.Vars(r)["id"], asOf)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(view).Write(w)
}

// handleSetSpendLimit replaces limit and period and answers with the usage
// under the new rule.
func (s *Server) handleSetSpendLimit(w http.ResponseWriter, r *http.Request) {
	var req spendLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := s.ledger.UpdateSpendLimit(r.Context(), id, req.Limit, req.Period); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	view, err := s.ledger.SpendLimit(id, s.now())
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(view).Write(w)
}

func (s *Server) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Permissions(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(p).Write(w)
}

func (s *Server) handleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var u ledger.PermissionUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	p, err := s.ledger.UpdatePermissions(r.Context(), mux.Vars(r)["id"], u)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	NewResponse().JSON(p).Write(w)
}

// handleAdjustBalance applies a manual signed correction to a balance.
func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpAdjust, err)
		return
	}
	if req.Delta.IsZero() {
		s.fail(w, r, applog.OpAdjust, core.ErrInvalidAmount)
		return
	}

	id := mux.Vars(r)["id"]
	balance, err := s.ledger.ApplyBalanceDelta(r.Context(), id, req.Delta)
	if err != nil {
		s.fail(w, r, applog.OpAdjust, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Balance adjustment recorded",
		applog.FieldSubAccountID, id,
		applog.FieldAmountCents, req.Delta.Cents,
		"note", sanitizeInput(req.Note))
	NewResponse().JSON(adjustmentResponse{SubAccountID: id, Delta: req.Delta, Balance: balance}).Write(w)
}

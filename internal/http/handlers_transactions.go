package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
)

type proposeRequest struct {
	Amount      core.Money           `json:"amount"`
	Type        core.TransactionType `json:"type"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
	Merchant    string               `json:"merchant,omitempty"`
}

// handlePropose submits a transaction for authorization. The outcome,
// completed, pending or declined, is always a 201; only invalid input is an
// error. With an Idempotency-Key the first response is replayed for retries.
func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		s.propose(w, r, id).Write(w)
		return
	}
	if len(key) > maxIdempotencyKey {
		UnprocessableEntityError("Idempotency-Key is too long").Write(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		BadRequestError("request body could not be read").Write(w)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	scoped := id + ":" + key
	entry, owner, err := s.idem.claim(scoped, body)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if !owner {
		if err := entry.wait(r.Context()); err != nil {
			return
		}
		writeRaw(w, entry.replayHeaders(), entry.status, entry.body)
		return
	}

	rb := s.propose(w, r, id)
	status, out := rb.render()
	s.idem.complete(scoped, entry, status, rb.headers, out)
	writeRaw(w, rb.headers, status, out)
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request, subAccountID string) *ResponseBuilder {
	var req proposeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return DomainError(err)
	}

	tx, err := s.ledger.Propose(r.Context(), ledger.ProposeRequest{
		SubAccountID: subAccountID,
		Amount:       req.Amount,
		Type:         req.Type,
		Category:     sanitizeInput(req.Category),
		Description:  sanitizeInput(req.Description),
		Merchant:     sanitizeInput(req.Merchant),
	})
	if err != nil {
		rb := DomainError(err)
		if rb.statusCode >= 500 {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Propose failed",
				applog.FieldSubAccountID, subAccountID,
				applog.FieldError, err)
		}
		return rb
	}

	return NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		JSON(tx)
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := parseStatus(r.URL.Query())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	if _, err := s.ledger.Account(id); err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewResponse().JSON(filterStatus(s.ledger.BySubAccount(id), status)).Write(w)
}

// handleListTransactions lists the whole log, newest first, optionally
// filtered by ?status= and ?subAccountId=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := parseStatus(q)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}

	var txs []core.Transaction
	switch sub := strings.TrimSpace(q.Get("subAccountId")); {
	case sub != "":
		txs = filterStatus(s.ledger.BySubAccount(sub), status)
	case status == core.StatusPending:
		txs = s.ledger.Pending()
	default:
		txs = filterStatus(s.ledger.All(), status)
	}
	NewResponse().JSON(txs).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.ByID(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(tx).Write(w)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.writeTransaction(w, r, applog.OpApprove)(s.ledger.Approve(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.writeTransaction(w, r, applog.OpDecline)(s.ledger.Decline(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) writeTransaction(w http.ResponseWriter, r *http.Request, op string) func(core.Transaction, error) {
	return func(tx core.Transaction, err error) {
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		NewResponse().JSON(tx).Write(w)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query(), s.now(), s.ledger.Location())
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(s.ledger.Overview(asOf)).Write(w)
}

package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
)

type memberRequest struct {
	ID     string    `json:"id,omitempty"`
	Name   string    `json:"name"`
	Email  string    `json:"email,omitempty"`
	Avatar string    `json:"avatar,omitempty"`
	Age    int       `json:"age,omitempty"`
	Role   core.Role `json:"role"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.ledger.Members()).Write(w)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	m, err := s.ledger.RegisterMember(r.Context(), core.Member{
		ID:     sanitizeInput(req.ID),
		Name:   sanitizeInput(req.Name),
		Email:  sanitizeInput(req.Email),
		Avatar: sanitizeInput(req.Avatar),
		Age:    req.Age,
		Role:   req.Role,
	})
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/members/"+m.ID).
		JSON(m).
		Write(w)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.ledger.Member(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(m).Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var u ledger.MemberUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	for _, p := range []*string{u.Name, u.Email, u.Avatar} {
		if p != nil {
			*p = sanitizeInput(*p)
		}
	}

	m, err := s.ledger.UpdateMember(r.Context(), mux.Vars(r)["id"], u)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	NewResponse().JSON(m).Write(w)
}

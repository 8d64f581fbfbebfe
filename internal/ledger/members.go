package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"famfunds/internal/core"
)

type memberRegistry struct {
	mu    sync.RWMutex
	byID  map[string]core.Member
	order []string
}

func newMemberRegistry() *memberRegistry {
	return &memberRegistry{byID: make(map[string]core.Member)}
}

func (r *memberRegistry) get(id string) (core.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return core.Member{}, fmt.Errorf("%w: %s", core.ErrMemberNotFound, id)
	}
	return m, nil
}

func (r *memberRegistry) put(m core.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.byID[m.ID] = m
}

func (r *memberRegistry) list() []core.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// MemberUpdate carries the editable display fields; nil means unchanged.
type MemberUpdate struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	Age    *int    `json:"age,omitempty"`
}

// RegisterMember adds a member. An empty ID is generated; CreatedAt defaults
// to now.
func (e *Engine) RegisterMember(ctx context.Context, m core.Member) (core.Member, error) {
	m.Name = strings.TrimSpace(m.Name)
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	if m.ID == "" {
		m.ID = e.newID("mem")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = e.clock()
	}

	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	if _, err := e.members.get(m.ID); err == nil {
		return core.Member{}, fmt.Errorf("%w: %s", core.ErrMemberExists, m.ID)
	}

	if err := e.commit(ctx, Change{Members: []core.Member{m}}); err != nil {
		return core.Member{}, err
	}
	e.logger.InfoContext(ctx, "Member registered", "member_id", m.ID, "role", m.Role)
	return m, nil
}

// Member returns one member by id.
func (e *Engine) Member(id string) (core.Member, error) {
	return e.members.get(id)
}

// Members returns every member in registration order.
func (e *Engine) Members() []core.Member {
	return e.members.list()
}

// UpdateMember edits display fields. Id, role and creation time are fixed.
func (e *Engine) UpdateMember(ctx context.Context, id string, u MemberUpdate) (core.Member, error) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	m, err := e.members.get(id)
	if err != nil {
		return core.Member{}, err
	}
	if u.Name != nil {
		m.Name = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		m.Email = strings.TrimSpace(*u.Email)
	}
	if u.Avatar != nil {
		m.Avatar = *u.Avatar
	}
	if u.Age != nil {
		m.Age = *u.Age
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	if err := e.commit(ctx, Change{Members: []core.Member{m}}); err != nil {
		return core.Member{}, err
	}
	return m, nil
}

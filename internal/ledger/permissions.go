package ledger

import (
	"context"
	"fmt"
	"sync"

	"famfunds/internal/core"
)

type permissionStore struct {
	mu        sync.RWMutex
	byAccount map[string]core.PermissionProfile
}

func newPermissionStore() *permissionStore {
	return &permissionStore{byAccount: make(map[string]core.PermissionProfile)}
}

func (s *permissionStore) get(subAccountID string) (core.PermissionProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byAccount[subAccountID]
	return p, ok
}

func (s *permissionStore) put(p core.PermissionProfile) {
	s.mu.Lock()
	s.byAccount[p.SubAccountID] = p
	s.mu.Unlock()
}

func (s *permissionStore) delete(subAccountID string) {
	s.mu.Lock()
	delete(s.byAccount, subAccountID)
	s.mu.Unlock()
}

func (s *permissionStore) list() []core.PermissionProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.PermissionProfile, 0, len(s.byAccount))
	for _, p := range s.byAccount {
		out = append(out, p)
	}
	return out
}

// PermissionUpdate is a partial update of a permission profile.
type PermissionUpdate struct {
	CanTransfer       *bool       `json:"canTransfer,omitempty"`
	CanViewFamily     *bool       `json:"canViewFamily,omitempty"`
	CanRequestFunds   *bool       `json:"canRequestFunds,omitempty"`
	RequiresApproval  *bool       `json:"requiresApproval,omitempty"`
	ApprovalThreshold *core.Money `json:"approvalThreshold,omitempty"`
}

// Permissions returns the profile of a sub-account.
func (e *Engine) Permissions(subAccountID string) (core.PermissionProfile, error) {
	p, ok := e.perms.get(subAccountID)
	if !ok {
		return core.PermissionProfile{}, fmt.Errorf("%w: %s", core.ErrPermissionsNotFound, subAccountID)
	}
	return p, nil
}

// UpdatePermissions edits a profile inside the account's critical section, so
// it never races with an authorization decision on the same account.
func (e *Engine) UpdatePermissions(ctx context.Context, subAccountID string, u PermissionUpdate) (core.PermissionProfile, error) {
	if u.ApprovalThreshold != nil && u.ApprovalThreshold.IsNegative() {
		return core.PermissionProfile{}, core.ErrInvalidThreshold
	}

	unlock := e.locks.acquire(subAccountID)
	defer unlock()

	p, ok := e.perms.get(subAccountID)
	if !ok {
		return core.PermissionProfile{}, fmt.Errorf("%w: %s", core.ErrPermissionsNotFound, subAccountID)
	}
	if u.CanTransfer != nil {
		p.CanTransfer = *u.CanTransfer
	}
	if u.CanViewFamily != nil {
		p.CanViewFamily = *u.CanViewFamily
	}
	if u.CanRequestFunds != nil {
		p.CanRequestFunds = *u.CanRequestFunds
	}
	if u.RequiresApproval != nil {
		p.RequiresApproval = *u.RequiresApproval
	}
	if u.ApprovalThreshold != nil {
		p.ApprovalThreshold = *u.ApprovalThreshold
	}

	if err := e.commit(ctx, Change{Permissions: []core.PermissionProfile{p}}); err != nil {
		return core.PermissionProfile{}, err
	}
	e.logger.InfoContext(ctx, "Permissions updated",
		"sub_account_id", subAccountID,
		"requires_approval", p.RequiresApproval,
		"threshold_cents", p.ApprovalThreshold.Cents)
	return p, nil
}

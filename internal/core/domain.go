package core

import (
	"strings"
	"time"
)

const (
	Daily   SpendPeriod = "daily"
	Weekly  SpendPeriod = "weekly"
	Monthly SpendPeriod = "monthly"
)

const (
	RoleParent   Role = "parent"
	RoleChild    Role = "child"
	RoleGuardian Role = "guardian"
)

const (
	LevelFull     PermissionLevel = "full"
	LevelLimited  PermissionLevel = "limited"
	LevelViewOnly PermissionLevel = "view-only"
)

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusDeclined  TransactionStatus = "declined"
)

// Reasons recorded in Metadata.Reason when a proposal does not settle.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonApprovalThreshold = "approval_threshold"
	ReasonPeriodLimit       = "period_limit"
)

// Resolutions recorded in Metadata.Resolution once a pending transaction is resolved.
const (
	ResolutionApproved           = "approved"
	ResolutionDeclinedOnApproval = "declined_on_approval"
	ResolutionDeclined           = "declined"
)

type (
	SpendPeriod       string
	Role              string
	PermissionLevel   string
	TransactionType   string
	TransactionStatus string

	Member struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email,omitempty"`
		Avatar    string    `json:"avatar,omitempty"`
		Age       int       `json:"age,omitempty"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"createdAt"`
	}

	SubAccount struct {
		ID              string          `json:"id"`
		MemberID        string          `json:"memberId"`
		Balance         Money           `json:"balance"`
		SpendLimit      Money           `json:"spendLimit"`
		SpendPeriod     SpendPeriod     `json:"spendPeriod"`
		PermissionLevel PermissionLevel `json:"permissionLevel"`
		IsActive        bool            `json:"isActive"`
		CreatedAt       time.Time       `json:"createdAt"`
		UpdatedAt       time.Time       `json:"updatedAt"`
	}

	// PermissionProfile is keyed 1:1 by sub-account. Only RequiresApproval and
	// ApprovalThreshold take part in authorization; the Can* flags are
	// informational for the presentation layer.
	PermissionProfile struct {
		SubAccountID      string `json:"subAccountId"`
		CanTransfer       bool   `json:"canTransfer"`
		CanViewFamily     bool   `json:"canViewFamily"`
		CanRequestFunds   bool   `json:"canRequestFunds"`
		RequiresApproval  bool   `json:"requiresApproval"`
		ApprovalThreshold Money  `json:"approvalThreshold"`
	}

	Metadata struct {
		RequiresApproval bool   `json:"requiresApproval"`
		Reason           string `json:"reason,omitempty"`
		Resolution       string `json:"resolution,omitempty"`
	}

	Transaction struct {
		ID           string            `json:"id"`
		SubAccountID string            `json:"subAccountId"`
		MemberID     string            `json:"memberId"`
		Amount       Money             `json:"amount"`
		Type         TransactionType   `json:"type"`
		Category     string            `json:"category"`
		Description  string            `json:"description"`
		Merchant     string            `json:"merchant,omitempty"`
		Status       TransactionStatus `json:"status"`
		Timestamp    time.Time         `json:"timestamp"`
		Metadata     Metadata          `json:"metadata"`
	}
)

func (p SpendPeriod) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleChild, RoleGuardian:
		return true
	}
	return false
}

func (l PermissionLevel) Valid() bool {
	switch l {
	case LevelFull, LevelLimited, LevelViewOnly:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	return t == Debit || t == Credit
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusDeclined
}

// DefaultPermissions derives the profile a freshly provisioned sub-account
// starts with.
func DefaultPermissions(subAccountID string, level PermissionLevel) PermissionProfile {
	threshold := Cents(50_00)
	if level == LevelViewOnly {
		threshold = Cents(25_00)
	}
	return PermissionProfile{
		SubAccountID:      subAccountID,
		CanTransfer:       level == LevelFull,
		CanViewFamily:     level != LevelViewOnly,
		CanRequestFunds:   true,
		RequiresApproval:  level != LevelFull,
		ApprovalThreshold: threshold,
	}
}

// NeedsApproval reports whether a debit of amount must wait for a human.
func (p PermissionProfile) NeedsApproval(amount Money) bool {
	return p.RequiresApproval && !p.ApprovalThreshold.GreaterThan(amount)
}

// Signed returns the balance effect of the transaction once settled.
func (t Transaction) Signed() Money {
	if t.Type == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if !m.Role.Valid() {
		return ErrInvalidRole
	}
	if m.Age < 0 {
		return ErrInvalidArgument
	}
	return nil
}

func (p PermissionProfile) Validate() error {
	if p.ApprovalThreshold.IsNegative() {
		return ErrInvalidThreshold
	}
	return nil
}

package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger wraps exactly one of these,
// so callers branch with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAccountInactive = errors.New("sub-account is not active")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	ErrMemberNotFound      = fmt.Errorf("member %w", ErrNotFound)
	ErrAccountNotFound     = fmt.Errorf("sub-account %w", ErrNotFound)
	ErrPermissionsNotFound = fmt.Errorf("permission profile %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	ErrAccountExists = fmt.Errorf("sub-account %w", ErrAlreadyExists)
	ErrMemberExists  = fmt.Errorf("member %w", ErrAlreadyExists)

	ErrNotPending       = fmt.Errorf("%w: transaction is not pending approval", ErrInvalidState)
	ErrAccountHasTxns   = fmt.Errorf("%w: sub-account has transactions", ErrInvalidState)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	ErrInvalidLimit     = fmt.Errorf("%w: spend limit must be positive", ErrInvalidArgument)
	ErrBalanceOverflow  = fmt.Errorf("%w: balance out of range", ErrInvalidArgument)
	ErrInvalidBalance   = fmt.Errorf("%w: initial balance must not be negative", ErrInvalidArgument)
	ErrInvalidPeriod    = fmt.Errorf("%w: unknown spend period", ErrInvalidArgument)
	ErrInvalidRole      = fmt.Errorf("%w: unknown role", ErrInvalidArgument)
	ErrInvalidLevel     = fmt.Errorf("%w: unknown permission level", ErrInvalidArgument)
	ErrInvalidType      = fmt.Errorf("%w: unknown transaction type", ErrInvalidArgument)
	ErrEmptyName        = fmt.Errorf("%w: empty name", ErrInvalidArgument)
	ErrInvalidThreshold = fmt.Errorf("%w: approval threshold must not be negative", ErrInvalidArgument)
)

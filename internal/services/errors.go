package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/tax"
	"github.com/diewo77/holzhandel-admin/internal/validation"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateInvoice   = errors.New("an invoice already exists for this order")
	ErrDuplicateNumber    = errors.New("invoice number already in use")
	ErrDuplicateSKU       = errors.New("sku already in use")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrMalformedOrderData = tax.ErrMalformedOrderData
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// DuplicateInvoiceError names the invoice that already bills the order.
type DuplicateInvoiceError struct {
	OrderID       uint
	InvoiceNumber string
}

func (e *DuplicateInvoiceError) Error() string {
	if e.InvoiceNumber == "" {
		return fmt.Sprintf("order %d already has an invoice", e.OrderID)
	}
	return fmt.Sprintf("order %d already has invoice %s", e.OrderID, e.InvoiceNumber)
}

func (e *DuplicateInvoiceError) Is(target error) bool { return target == ErrDuplicateInvoice }

// TransitionError reports a rejected status change.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change invoice status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError carries field violations of a service input.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, code := range e.Violations {
		fields = append(fields, f+"="+code)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func invalid(field, code string) error {
	return &ValidationError{Violations: validation.Violations{field: code}}
}

func validate(s any) error {
	if v := validation.Struct(s); v != nil {
		return &ValidationError{Violations: v}
	}
	return nil
}

// isUniqueViolation recognizes unique-constraint failures across drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

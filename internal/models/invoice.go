package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice is the billing artifact derived from exactly one Order.
// Invoices are hard-deleted, so the unique index on OrderID stays authoritative.
type Invoice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"public_id"`

	// Invoice identification
	Number   string `gorm:"column:invoice_number;size:50;uniqueIndex;not null" json:"invoice_number"`
	Sequence int64  `gorm:"not null;default:0" json:"sequence"`

	OrderID    uint   `gorm:"uniqueIndex;not null" json:"order_id"`
	Order      *Order `gorm:"foreignKey:OrderID" json:"-"`
	CustomerID *uint  `gorm:"index" json:"customer_id,omitempty"`

	InvoiceDate time.Time  `gorm:"not null" json:"invoice_date"`
	DueDate     time.Time  `gorm:"not null" json:"due_date"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`

	Status InvoiceStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`

	// Billing snapshot of the customer at creation time
	CustomerName    string `gorm:"size:255" json:"customer_name"`
	CustomerEmail   string `gorm:"size:255" json:"customer_email,omitempty"`
	BillingAddress  string `gorm:"size:1000" json:"billing_address,omitempty"`
	OrderNumberSnap string `gorm:"column:order_number;size:50" json:"order_number"`

	SubtotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	TaxIncluded    bool            `gorm:"not null" json:"tax_included"`

	PaymentTerms string `gorm:"size:500" json:"payment_terms,omitempty"`
	Notes        string `gorm:"type:text" json:"notes,omitempty"`
	PDFPath      string `gorm:"column:pdf_path;size:500" json:"pdf_path,omitempty"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// IsDraft returns true if the invoice is in draft status.
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// CanEdit returns true if the invoice can still be edited.
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// IsOverdue reports whether a sent invoice is past its due date at now.
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status == InvoiceStatusSent && i.DueDate.Before(now)
}

// EffectiveStatus is the status shown to operators: overdue is derived at
// display time and never persisted.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// InvoiceItem is one order line copied onto the invoice at creation time.
type InvoiceItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint `gorm:"index;not null" json:"invoice_id"`

	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	Unit        string          `gorm:"size:20;default:'SRM'" json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_rate"`

	// Position for ordering
	Position int `gorm:"default:0" json:"position"`
}

// InvoiceSequence is the database-level counter behind invoice numbers.
type InvoiceSequence struct {
	Name  string `gorm:"primaryKey;size:50"`
	Value int64  `gorm:"not null;default:0"`
}

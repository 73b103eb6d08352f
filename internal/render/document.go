// Package render turns invoices into HTML and PDF documents.
//
// Rendering is a pure function of (Document, settings): the same input always
// yields the same HTML bytes, which is what preview and PDF share.
package render

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/tax"
)

// ErrTransient marks renderer failures worth one more attempt.
var ErrTransient = errors.New("render: transient failure")

// RenderError reports a template or PDF failure. Field names the offending
// document field when it is known.
type RenderError struct {
	Field string
	Err   error
}

func (e *RenderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("render failed at field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Party is the billed customer.
type Party struct {
	Name    string
	Email   string
	Address string
}

// Company is the issuing company block, taken from the settings singleton.
type Company struct {
	Name          string
	Address       string
	Email         string
	Phone         string
	Website       string
	TaxNumber     string
	VATID         string
	BankName      string
	AccountHolder string
	IBAN          string
	BIC           string
	Footer        string
}

// Item is one rendered line.
type Item struct {
	Position    int
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	TaxRate     decimal.Decimal
}

// Document is everything a template needs.
type Document struct {
	Title        string
	Number       string
	Proforma     bool
	InvoiceDate  time.Time
	DueDate      time.Time
	Status       string
	OrderNumber  string
	Customer     Party
	Company      Company
	Items        []Item
	Totals       tax.Totals
	VATRate      decimal.Decimal
	TaxIncluded  bool
	PaymentTerms string
	Notes        string
}

// Validate rejects documents that would render with blank mandatory fields.
func (d Document) Validate() error {
	switch {
	case strings.TrimSpace(d.Number) == "":
		return &RenderError{Field: "invoice_number", Err: errors.New("is empty")}
	case strings.TrimSpace(d.Company.Name) == "":
		return &RenderError{Field: "company_name", Err: errors.New("is empty, configure the invoice settings")}
	case len(d.Items) == 0:
		return &RenderError{Field: "items", Err: errors.New("invoice has no items")}
	}
	return nil
}

func companyFrom(s models.InvoiceSettings) Company {
	return Company{
		Name:          s.CompanyName,
		Address:       s.CompanyAddress(),
		Email:         s.Email,
		Phone:         s.Phone,
		Website:       s.Website,
		TaxNumber:     s.TaxNumber,
		VATID:         s.VATID,
		BankName:      s.BankName,
		AccountHolder: s.AccountHolder,
		IBAN:          s.IBAN,
		BIC:           s.BIC,
		Footer:        s.FooterText,
	}
}

// FromInvoice builds the document of a stored invoice. Amounts come from
// the invoice rows; settings only contribute the company block.
func FromInvoice(inv models.Invoice, s models.InvoiceSettings) Document {
	items := make([]Item, 0, len(inv.Items))
	for i, it := range inv.Items {
		items = append(items, Item{
			Position:    i + 1,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
			TaxRate:     it.TaxRate,
		})
	}
	rate := s.VATRate
	if len(inv.Items) > 0 {
		rate = inv.Items[0].TaxRate
	}
	return Document{
		Title:       "Rechnung",
		Number:      inv.Number,
		InvoiceDate: inv.InvoiceDate,
		DueDate:     inv.DueDate,
		Status:      string(inv.Status),
		OrderNumber: inv.OrderNumberSnap,
		Customer: Party{
			Name:    inv.CustomerName,
			Email:   inv.CustomerEmail,
			Address: inv.BillingAddress,
		},
		Company:      companyFrom(s),
		Items:        items,
		Totals:       tax.Totals{Subtotal: inv.SubtotalAmount, Tax: inv.TaxAmount, Total: inv.TotalAmount},
		VATRate:      rate,
		TaxIncluded:  inv.TaxIncluded,
		PaymentTerms: inv.PaymentTerms,
		Notes:        inv.Notes,
	}
}

// FromOrder builds an unsaved pro-forma document for an order that has no
// invoice yet. Totals are computed with the given settings.
func FromOrder(o models.Order, s models.InvoiceSettings, now time.Time) (Document, error) {
	lines, err := OrderLines(o)
	if err != nil {
		return Document{}, err
	}
	totals, err := tax.Calculate(lines, tax.Settings{VATRate: s.VATRate, TaxIncluded: s.DefaultTaxIncluded})
	if err != nil {
		return Document{}, err
	}

	items := make([]Item, 0, len(lines))
	for i, l := range lines {
		unit := DeliveryUnit
		if i < len(o.Items) {
			unit = o.Items[i].Unit
			if unit == "" {
				unit = models.UnitSRM
			}
		}
		items = append(items, Item{
			Position:    i + 1,
			Description: l.Description,
			Quantity:    l.Quantity.Decimal,
			Unit:        unit,
			UnitPrice:   l.UnitPrice.Decimal,
			TotalPrice:  tax.LineTotal(l),
			TaxRate:     s.VATRate,
		})
	}
	day := Day(now)
	return Document{
		Title:       "Proforma-Rechnung",
		Number:      "PROFORMA-" + o.OrderNumber,
		Proforma:    true,
		InvoiceDate: day,
		DueDate:     day.AddDate(0, 0, s.PaymentTermsDays),
		Status:      string(models.InvoiceStatusDraft),
		OrderNumber: o.OrderNumber,
		Customer: Party{
			Name:    o.CustomerName,
			Email:   o.CustomerEmail,
			Address: o.BillingAddress,
		},
		Company:      companyFrom(s),
		Items:        items,
		Totals:       totals,
		VATRate:      s.VATRate,
		TaxIncluded:  s.DefaultTaxIncluded,
		PaymentTerms: PaymentTermsText(s.PaymentTermsDays),
	}, nil
}

// Day returns midnight of t's calendar day in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Delivery charges are billed as one flat-rate line.
const (
	DeliveryDescription = "Lieferung"
	DeliveryUnit        = "psch."
)

// OrderLines converts order items, plus delivery when charged, to tax lines.
func OrderLines(o models.Order) ([]tax.Line, error) {
	lines := make([]tax.Line, 0, len(o.Items)+1)
	for _, it := range o.Items {
		lines = append(lines, tax.Line{
			Description: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	if o.DeliveryPrice.Valid && o.DeliveryPrice.Decimal.IsPositive() {
		lines = append(lines, tax.NewLine(DeliveryDescription, decimal.NewFromInt(1), o.DeliveryPrice.Decimal))
	}
	if len(lines) == 0 {
		return nil, &tax.MalformedOrderDataError{Field: "items", Reason: "is empty"}
	}
	return lines, nil
}

// PaymentTermsText is the human-facing payment terms line.
func PaymentTermsText(days int) string {
	if days <= 0 {
		return "Zahlbar sofort ohne Abzug."
	}
	return "Zahlbar innerhalb von " + strconv.Itoa(days) + " Tagen ohne Abzug."
}

// ApplyOverrides returns a copy of s with live-edited draft values applied.
// Unknown keys and unparsable values are reported as *RenderError.
func ApplyOverrides(s models.InvoiceSettings, overrides map[string]string) (models.InvoiceSettings, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v := overrides[key]
		switch key {
		case "company_name":
			s.CompanyName = v
		case "street":
			s.Street = v
		case "postal_code":
			s.PostalCode = v
		case "city":
			s.City = v
		case "country":
			s.Country = v
		case "email":
			s.Email = v
		case "phone":
			s.Phone = v
		case "website":
			s.Website = v
		case "tax_number":
			s.TaxNumber = v
		case "vat_id":
			s.VATID = v
		case "bank_name":
			s.BankName = v
		case "account_holder":
			s.AccountHolder = v
		case "iban":
			s.IBAN = v
		case "bic":
			s.BIC = v
		case "footer_text":
			s.FooterText = v
		case "number_prefix":
			s.NumberPrefix = v
		case "vat_rate":
			rate, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil || rate.IsNegative() {
				return s, &RenderError{Field: key, Err: fmt.Errorf("invalid value %q", v)}
			}
			s.VATRate = rate
		case "default_tax_included":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return s, &RenderError{Field: key, Err: fmt.Errorf("invalid value %q", v)}
			}
			s.DefaultTaxIncluded = b
		case "payment_terms_days":
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				return s, &RenderError{Field: key, Err: fmt.Errorf("invalid value %q", v)}
			}
			s.PaymentTermsDays = n
		default:
			return s, &RenderError{Field: key, Err: errors.New("unknown setting")}
		}
	}
	return s, nil
}

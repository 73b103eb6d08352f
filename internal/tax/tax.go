// Package tax computes invoice subtotal, VAT and total from order lines.
//
// Amounts are summed at full precision and only the three presented values
// are rounded to cents, so Subtotal + Tax == Total always holds exactly.
package tax

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedOrderData matches every *MalformedOrderDataError.
var ErrMalformedOrderData = errors.New("malformed order data")

// MalformedOrderDataError reports a missing or non-numeric order field.
type MalformedOrderDataError struct {
	Field  string
	Reason string
}

func (e *MalformedOrderDataError) Error() string {
	return fmt.Sprintf("malformed order data: %s %s", e.Field, e.Reason)
}

func (e *MalformedOrderDataError) Is(target error) bool {
	return target == ErrMalformedOrderData
}

var hundred = decimal.NewFromInt(100)

// Settings is the tax configuration relevant to a calculation.
type Settings struct {
	VATRate     decimal.Decimal // percent, e.g. 19
	TaxIncluded bool            // unit prices already contain VAT
}

// Line is one (quantity, unit price) pair. Invalid values mean missing.
type Line struct {
	Description string
	Quantity    decimal.NullDecimal
	UnitPrice   decimal.NullDecimal
}

// NewLine builds a line from known-good values.
func NewLine(description string, qty, unitPrice decimal.Decimal) Line {
	return Line{
		Description: description,
		Quantity:    decimal.NewNullDecimal(qty),
		UnitPrice:   decimal.NewNullDecimal(unitPrice),
	}
}

// ParseLine parses decimal-as-string input.
func ParseLine(description, qty, unitPrice string) (Line, error) {
	q, err := parseField("quantity", qty)
	if err != nil {
		return Line{}, err
	}
	p, err := parseField("unit_price", unitPrice)
	if err != nil {
		return Line{}, err
	}
	return NewLine(description, q, p), nil
}

func parseField(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &MalformedOrderDataError{Field: field, Reason: "is missing"}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &MalformedOrderDataError{Field: field, Reason: fmt.Sprintf("is not numeric (%q)", raw)}
	}
	return d, nil
}

// Totals are the presented, cent-rounded amounts.
type Totals struct {
	Subtotal decimal.Decimal // net
	Tax      decimal.Decimal
	Total    decimal.Decimal // gross
}

// LineTotal returns quantity × unit price rounded to cents.
func LineTotal(l Line) decimal.Decimal {
	return l.Quantity.Decimal.Mul(l.UnitPrice.Decimal).Round(2)
}

// Validate checks a single line; index is used in the error field name.
func (l Line) Validate(index int) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }
	switch {
	case !l.Quantity.Valid:
		return &MalformedOrderDataError{Field: field("quantity"), Reason: "is missing"}
	case !l.UnitPrice.Valid:
		return &MalformedOrderDataError{Field: field("unit_price"), Reason: "is missing"}
	case !l.Quantity.Decimal.IsPositive():
		return &MalformedOrderDataError{Field: field("quantity"), Reason: "must be positive"}
	case l.UnitPrice.Decimal.IsNegative():
		return &MalformedOrderDataError{Field: field("unit_price"), Reason: "must not be negative"}
	}
	return nil
}

// Calculate computes totals for lines under s.
func Calculate(lines []Line, s Settings) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, &MalformedOrderDataError{Field: "items", Reason: "is empty"}
	}
	if s.VATRate.IsNegative() {
		return Totals{}, &MalformedOrderDataError{Field: "vat_rate", Reason: "must not be negative"}
	}

	sum := decimal.Zero
	for i, l := range lines {
		if err := l.Validate(i); err != nil {
			return Totals{}, err
		}
		sum = sum.Add(l.Quantity.Decimal.Mul(l.UnitPrice.Decimal))
	}

	if s.TaxIncluded {
		return fromGross(sum, s.VATRate), nil
	}
	return fromNet(sum, s.VATRate), nil
}

func fromNet(net, rate decimal.Decimal) Totals {
	subtotal := net.Round(2)
	tax := net.Mul(rate).Div(hundred).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

func fromGross(gross, rate decimal.Decimal) Totals {
	total := gross.Round(2)
	divisor := hundred.Add(rate).Div(hundred)
	net := gross.Div(divisor).Round(2)
	return Totals{Subtotal: net, Tax: total.Sub(net), Total: total}
}

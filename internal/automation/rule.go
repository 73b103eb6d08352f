// Package automation implements the price-automation rules as a tagged
// variant: every Rule carries a Kind and exactly one typed payload.
package automation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a rule variant.
type Kind string

const (
	KindMarkup           Kind = "markup"
	KindFixedPrice       Kind = "fixed_price"
	KindSeasonalDiscount Kind = "seasonal_discount"
)

var (
	ErrUnknownKind     = errors.New("automation: unknown rule kind")
	ErrPayloadMismatch = errors.New("automation: payload does not match kind")
	ErrInvalidRule     = errors.New("automation: invalid rule")
)

// Markup raises the price by Percent (may be negative for a general discount).
type Markup struct {
	Percent decimal.Decimal `json:"percent"`
}

// FixedPrice replaces the price.
type FixedPrice struct {
	Price decimal.Decimal `json:"price"`
}

// SeasonalDiscount lowers the price by Percent between two month/day marks
// (inclusive). The window may wrap the year end, e.g. November to February.
type SeasonalDiscount struct {
	Percent    decimal.Decimal `json:"percent"`
	StartMonth time.Month      `json:"start_month"`
	StartDay   int             `json:"start_day"`
	EndMonth   time.Month      `json:"end_month"`
	EndDay     int             `json:"end_day"`
}

// Rule is the tagged variant. Use the constructors to build one.
type Rule struct {
	Kind     Kind
	Markup   *Markup
	Fixed    *FixedPrice
	Seasonal *SeasonalDiscount
}

func NewMarkup(percent decimal.Decimal) Rule {
	return Rule{Kind: KindMarkup, Markup: &Markup{Percent: percent}}
}

func NewFixedPrice(price decimal.Decimal) Rule {
	return Rule{Kind: KindFixedPrice, Fixed: &FixedPrice{Price: price}}
}

func NewSeasonalDiscount(d SeasonalDiscount) Rule {
	return Rule{Kind: KindSeasonalDiscount, Seasonal: &d}
}

// Validate checks that exactly the payload for Kind is present and sane.
func (r Rule) Validate() error {
	set := 0
	for _, present := range []bool{r.Markup != nil, r.Fixed != nil, r.Seasonal != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return ErrPayloadMismatch
	}

	switch r.Kind {
	case KindMarkup:
		if r.Markup == nil {
			return ErrPayloadMismatch
		}
		if r.Markup.Percent.LessThanOrEqual(decimal.NewFromInt(-100)) {
			return fmt.Errorf("%w: markup must be above -100%%", ErrInvalidRule)
		}
	case KindFixedPrice:
		if r.Fixed == nil {
			return ErrPayloadMismatch
		}
		if r.Fixed.Price.IsNegative() {
			return fmt.Errorf("%w: fixed price must not be negative", ErrInvalidRule)
		}
	case KindSeasonalDiscount:
		s := r.Seasonal
		if s == nil {
			return ErrPayloadMismatch
		}
		if s.Percent.IsNegative() || s.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: discount must be within 0..100", ErrInvalidRule)
		}
		if !validMonthDay(s.StartMonth, s.StartDay) || !validMonthDay(s.EndMonth, s.EndDay) {
			return fmt.Errorf("%w: invalid season bounds", ErrInvalidRule)
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

func validMonthDay(m time.Month, d int) bool {
	return m >= time.January && m <= time.December && d >= 1 && d <= 31
}

// Apply returns the price after the rule at time now.
func (r Rule) Apply(price decimal.Decimal, now time.Time) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	switch r.Kind {
	case KindMarkup:
		if r.Markup == nil {
			return price
		}
		return price.Mul(hundred.Add(r.Markup.Percent)).Div(hundred).Round(2)
	case KindFixedPrice:
		if r.Fixed == nil {
			return price
		}
		return r.Fixed.Price.Round(2)
	case KindSeasonalDiscount:
		if r.Seasonal == nil || !r.Seasonal.Active(now) {
			return price
		}
		return price.Mul(hundred.Sub(r.Seasonal.Percent)).Div(hundred).Round(2)
	}
	return price
}

// Active reports whether now falls inside the season window.
func (s SeasonalDiscount) Active(now time.Time) bool {
	cur := int(now.Month())*100 + now.Day()
	start := int(s.StartMonth)*100 + s.StartDay
	end := int(s.EndMonth)*100 + s.EndDay
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

type wireRule struct {
	Kind     Kind              `json:"kind"`
	Markup   *Markup           `json:"markup,omitempty"`
	Fixed    *FixedPrice       `json:"fixed_price,omitempty"`
	Seasonal *SeasonalDiscount `json:"seasonal_discount,omitempty"`
}

// MarshalJSON encodes the rule as {"kind": ..., "<kind>": {...}}.
func (r Rule) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(wireRule(r))
}

// UnmarshalJSON decodes and validates a rule; unknown fields are rejected.
func (r *Rule) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireRule
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	rule := Rule(w)
	if err := rule.Validate(); err != nil {
		return err
	}
	*r = rule
	return nil
}

// Prioritized pairs a rule with its evaluation order.
type Prioritized struct {
	Priority int
	Rule     Rule
}

// Evaluate applies rules in ascending priority order. A fixed price resets
// the running price, later markups and discounts build on it.
func Evaluate(rules []Prioritized, price decimal.Decimal, now time.Time) decimal.Decimal {
	ordered := make([]Prioritized, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, p := range ordered {
		price = p.Rule.Apply(price, now)
	}
	return price
}

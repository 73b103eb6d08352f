// Package validation collects field-level request errors into Violations.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Violations maps a JSON field name to a short error code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v[field] = "must_not_be_negative"
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v[field] = "out_of_range"
	}
}

var (
	ibanRe = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
	bicRe  = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator. Field names in errors are the
// json tag names. Extra tags: "decimal" (decimal string), "iban", "bic".
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := decimal.NewFromString(s)
			return err == nil
		})
		_ = v.RegisterValidation("iban", func(fl validator.FieldLevel) bool {
			return ibanRe.MatchString(strings.ToUpper(strings.ReplaceAll(fl.Field().String(), " ", "")))
		})
		_ = v.RegisterValidation("bic", func(fl validator.FieldLevel) bool {
			return bicRe.MatchString(strings.ToUpper(fl.Field().String()))
		})
		instance = v
	})
	return instance
}

// Struct validates s and returns the violations, or nil when s is valid.
func Struct(s any) Violations {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	return FromValidator(err)
}

// FromValidator converts validator errors to Violations keyed by field path.
func FromValidator(err error) Violations {
	v := Violations{}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		v["_"] = "invalid"
		return v
	}
	for _, fe := range ves {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		v[ns] = fe.Tag()
	}
	return v
}

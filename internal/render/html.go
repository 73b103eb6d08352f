package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultTemplate = "invoice.html"

// Funcs returns the helpers available to invoice templates. Formatting is
// German (1.234,56 €) regardless of the request.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"money": FormatMoney,
		"qty":   FormatQuantity,
		"pct":   FormatPercent,
		"date":  FormatDate,
		"lines": func(s string) []string {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			return strings.Split(s, "\n")
		},
	}
}

// FormatMoney renders d with two decimals and a euro suffix. Only the
// grouping of the integer part goes through the printer, so no digit passes
// through a float.
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	fixed := r.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	sign := ""
	if r.IsNegative() {
		sign = "-"
	}
	grouped := whole
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		grouped = message.NewPrinter(language.German).Sprintf("%d", n)
	}
	return sign + grouped + "," + cents + " €"
}

// FormatQuantity renders up to three decimals with a decimal comma.
func FormatQuantity(d decimal.Decimal) string {
	return strings.Replace(d.Round(3).String(), ".", ",", 1)
}

// FormatPercent renders a tax rate such as 19 or 7,5.
func FormatPercent(d decimal.Decimal) string {
	return FormatQuantity(d) + " %"
}

// FormatDate renders a German date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

// HTMLRenderer merges documents into a parsed template.
type HTMLRenderer struct {
	tpl *template.Template
}

// NewHTMLRenderer parses the embedded invoice template.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	t, err := template.New(defaultTemplate).
		Funcs(Funcs()).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/"+defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &HTMLRenderer{tpl: t}, nil
}

// NewHTMLRendererFromFile parses a custom template. The file must define a
// template named like its base name, as the embedded one does.
func NewHTMLRendererFromFile(path string) (*HTMLRenderer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read invoice template: %w", err)
	}
	t, err := template.New(defaultTemplate).
		Funcs(Funcs()).
		Option("missingkey=error").
		Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse invoice template %s: %w", path, err)
	}
	return &HTMLRenderer{tpl: t}, nil
}

var execFieldRe = regexp.MustCompile(`at <([^>]+)>`)

// Render executes the template. It performs no I/O and reads no clock, so
// equal documents produce equal bytes.
func (h *HTMLRenderer) Render(doc Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := h.tpl.Execute(&buf, doc); err != nil {
		field := ""
		if m := execFieldRe.FindStringSubmatch(err.Error()); m != nil {
			field = strings.TrimPrefix(m[1], ".")
		}
		return nil, &RenderError{Field: field, Err: err}
	}
	return buf.Bytes(), nil
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/automation"
	"github.com/diewo77/holzhandel-admin/internal/db/dbtest"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestProductService_CRUD(t *testing.T) {
	d := dbtest.Open(t)
	svc := NewProductService(d, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, ProductInput{SKU: " buche-33 ", Name: "Buche 33cm", UnitPrice: "95.00", Stock: "12.5"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.SKU != "BUCHE-33" || p.Unit != models.UnitSRM || !p.IsActive {
		t.Fatalf("unexpected product %+v", p)
	}

	if _, err := svc.Create(ctx, ProductInput{SKU: "BUCHE-33", Name: "Dup", UnitPrice: "1"}); !errors.Is(err, ErrDuplicateSKU) {
		t.Fatalf("expected ErrDuplicateSKU, got %v", err)
	}
	var ve *ValidationError
	if _, err := svc.Create(ctx, ProductInput{SKU: "X", Name: "Neg", UnitPrice: "-1"}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Create(ctx, ProductInput{SKU: "X"}); !errors.As(err, &ve) || ve.Violations["name"] == "" {
		t.Fatalf("expected name violation, got %v", err)
	}

	updated, err := svc.Update(ctx, p.ID, ProductInput{SKU: "BUCHE-33", Name: "Buche 33cm trocken", UnitPrice: "99", IsActive: boolPtr(false)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsActive || !updated.UnitPrice.Equal(dec("99")) {
		t.Fatalf("unexpected update %+v", updated)
	}

	list, total, err := svc.List(ctx, "trocken", false, Page{})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("search: %d %v", total, err)
	}
	if _, total, _ := svc.List(ctx, "", true, Page{}); total != 0 {
		t.Fatalf("inactive product listed as active")
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestProductService_PriceAppliesRules(t *testing.T) {
	d := dbtest.Open(t)
	rules := NewRuleService(d)
	svc := NewProductService(d, rules)
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	p, err := svc.Create(ctx, ProductInput{SKU: "EICHE", Name: "Eiche", UnitPrice: "100"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.Create(ctx, ProductInput{SKU: "FICHTE", Name: "Fichte", UnitPrice: "70"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inputs := []RuleInput{
		{Name: "Sommerrabatt", Priority: 20, Rule: automation.NewSeasonalDiscount(automation.SeasonalDiscount{
			Percent: dec("10"), StartMonth: time.May, StartDay: 1, EndMonth: time.August, EndDay: 31,
		})},
		{Name: "Aufschlag", ProductID: &p.ID, Priority: 10, Rule: automation.NewMarkup(dec("20"))},
		{Name: "Fichte fix", ProductID: &other.ID, Priority: 5, Rule: automation.NewFixedPrice(dec("60"))},
		{Name: "inaktiv", Priority: 1, Active: boolPtr(false), Rule: automation.NewFixedPrice(dec("1"))},
	}
	for _, in := range inputs {
		if _, err := rules.Create(ctx, in); err != nil {
			t.Fatalf("rule %s: %v", in.Name, err)
		}
	}

	q, err := svc.Price(ctx, p.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	// 100 * 1.2 = 120, then 10 % seasonal discount
	if !q.Price.Equal(dec("108")) || !q.BasePrice.Equal(dec("100")) {
		t.Fatalf("quote = %+v", q)
	}
	if len(q.Rules) != 2 || q.Rules[0] != "Aufschlag" || q.Rules[1] != "Sommerrabatt" {
		t.Fatalf("rules = %v", q.Rules)
	}

	q, err = svc.Price(ctx, other.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !q.Price.Equal(dec("54")) {
		t.Fatalf("fichte price = %s", q.Price)
	}
}

func TestRuleService_Validation(t *testing.T) {
	d := dbtest.Open(t)
	rules := NewRuleService(d)
	ctx := context.Background()

	var ve *ValidationError
	if _, err := rules.Create(ctx, RuleInput{Name: "leer"}); !errors.As(err, &ve) || ve.Violations["rule"] == "" {
		t.Fatalf("expected rule violation, got %v", err)
	}
	missing := uint(42)
	if _, err := rules.Create(ctx, RuleInput{Name: "x", ProductID: &missing, Rule: automation.NewMarkup(dec("5"))}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}

	r, err := rules.Create(ctx, RuleInput{Name: "Aufschlag", Rule: automation.NewMarkup(dec("5"))})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, err := rules.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := stored.Rule.Data(); got.Kind != automation.KindMarkup || !got.Markup.Percent.Equal(dec("5")) {
		t.Fatalf("stored rule = %+v", got)
	}

	if _, err := rules.Update(ctx, r.ID, RuleInput{Name: "Fix", Rule: automation.NewFixedPrice(dec("80"))}); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := rules.List(ctx)
	if err != nil || len(list) != 1 || list[0].Rule.Data().Kind != automation.KindFixedPrice {
		t.Fatalf("list = %+v %v", list, err)
	}
	if err := rules.Delete(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := rules.Delete(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderService_ListUninvoiced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := dbtest.Order(t, f.db, "B-50", [2]string{"1", "10"})
	b := dbtest.Order(t, f.db, "B-51", [2]string{"2", "10"})
	if _, err := f.invoices.Create(ctx, CreateParams{OrderID: a.ID}); err != nil {
		t.Fatalf("create: %v", err)
	}

	orders := NewOrderService(f.db)
	all, total, err := orders.List(ctx, OrderFilter{})
	if err != nil || total != 2 || len(all) != 2 {
		t.Fatalf("all: %d %v", total, err)
	}
	open, total, err := orders.List(ctx, OrderFilter{Uninvoiced: true})
	if err != nil || total != 1 || open[0].ID != b.ID {
		t.Fatalf("uninvoiced = %+v %v", open, err)
	}

	got, err := orders.Get(ctx, b.ID)
	if err != nil || len(got.Items) != 1 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := orders.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserService_Authenticate(t *testing.T) {
	d := dbtest.Open(t)
	hash, err := auth.HashPassword("geheim123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := d.Create(&models.User{Email: "buchhaltung@holz.de", Password: hash, Role: models.RoleAccountant}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewUserService(d)
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "Buchhaltung@Holz.de ", "geheim123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Role != models.RoleAccountant {
		t.Fatalf("role = %s", u.Role)
	}
	if _, err := svc.Authenticate(ctx, "buchhaltung@holz.de", "falsch"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "niemand@holz.de", "geheim123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestSettingsService_Update(t *testing.T) {
	d := dbtest.Open(t)
	svc := NewSettingsService(d, testDefaults())
	ctx := context.Background()

	s, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.CompanyName != "Brennholz Maier" || !s.VATRate.Equal(dec("19")) {
		t.Fatalf("defaults = %+v", s)
	}

	s, err = svc.UpdateTax(ctx, TaxInput{VATRate: "7", DefaultTaxIncluded: boolPtr(false)})
	if err != nil {
		t.Fatalf("update tax: %v", err)
	}
	if !s.VATRate.Equal(dec("7")) || s.DefaultTaxIncluded {
		t.Fatalf("tax = %+v", s)
	}
	var ve *ValidationError
	if _, err := svc.UpdateTax(ctx, TaxInput{VATRate: "120", DefaultTaxIncluded: boolPtr(true)}); !errors.As(err, &ve) {
		t.Fatalf("expected range violation, got %v", err)
	}

	s, err = svc.UpdateInvoice(ctx, InvoiceSettingsInput{
		CompanyName:      "Holzhof Berger",
		IBAN:             "DE02 1203 0000 0000 2020 51",
		VATRate:          "19",
		PaymentTermsDays: 30,
		NumberPrefix:     "hb",
	})
	if err != nil {
		t.Fatalf("update invoice: %v", err)
	}
	if s.IBAN != "DE02120300000000202051" || s.NumberPrefix != "HB" || s.PaymentTermsDays != 30 {
		t.Fatalf("settings = %+v", s)
	}
	reloaded, _ := svc.Load(ctx)
	if reloaded.CompanyName != "Holzhof Berger" || reloaded.DefaultTaxIncluded {
		t.Fatalf("reloaded = %+v", reloaded)
	}
}

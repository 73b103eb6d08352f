package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/db/dbtest"
	"github.com/diewo77/holzhandel-admin/internal/events"
	"github.com/diewo77/holzhandel-admin/internal/locks"
	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/storage"
	"github.com/diewo77/holzhandel-admin/internal/tax"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testDefaults() config.InvoiceConfig {
	return config.InvoiceConfig{CompanyName: "Brennholz Maier", NumberPrefix: "RG", PaymentTermsDays: 14, DefaultVATRate: "19", TaxIncluded: true}
}

type fixture struct {
	db       *gorm.DB
	settings *SettingsService
	invoices *InvoiceService
	events   *events.Recorder
	store    *storage.LocalStore
}

func newFixture(t *testing.T, taxIncluded bool) *fixture {
	t.Helper()
	d := dbtest.Open(t)
	dbtest.Settings(t, d, taxIncluded)
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	rec := &events.Recorder{}
	settings := NewSettingsService(d, testDefaults())
	inv := NewInvoiceService(d, settings, InvoiceDeps{
		Locker:    locks.NewMemoryLocker(),
		Publisher: rec,
		Store:     store,
		Now:       func() time.Time { return testNow },
	})
	return &fixture{db: d, settings: settings, invoices: inv, events: rec, store: store}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", name, got.StringFixed(2), want)
	}
}

func TestCreate_NetPricing(t *testing.T) {
	f := newFixture(t, false)
	o := dbtest.Order(t, f.db, "B-1001", [2]string{"2", "25.00"}, [2]string{"1", "40.00"})

	inv, err := f.invoices.Create(context.Background(), CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertAmount(t, "subtotal", inv.SubtotalAmount, "90.00")
	assertAmount(t, "tax", inv.TaxAmount, "17.10")
	assertAmount(t, "total", inv.TotalAmount, "107.10")
	if inv.Number != "RG-2026-00001" || inv.Sequence != 1 {
		t.Fatalf("number = %s (seq %d)", inv.Number, inv.Sequence)
	}
	if inv.Status != models.InvoiceStatusDraft {
		t.Fatalf("status = %s", inv.Status)
	}
	if want := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC); !inv.DueDate.Equal(want) {
		t.Fatalf("due date = %v, want %v", inv.DueDate, want)
	}

	stored, err := f.invoices.GetByNumber(context.Background(), inv.Number)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Items) != 2 || stored.Items[0].Position != 1 || !stored.Items[0].TaxRate.Equal(dec("19")) {
		t.Fatalf("unexpected items: %+v", stored.Items)
	}
	assertAmount(t, "stored total", stored.TotalAmount, "107.10")

	evs := f.events.Events()
	if len(evs) != 1 || evs[0].Type != events.InvoiceCreated || evs[0].InvoiceNumber != inv.Number {
		t.Fatalf("events = %+v", evs)
	}
}

func TestCreate_GrossPricing(t *testing.T) {
	f := newFixture(t, true)
	o := dbtest.Order(t, f.db, "B-1002", [2]string{"1", "107.10"})

	inv, err := f.invoices.Create(context.Background(), CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertAmount(t, "net", inv.SubtotalAmount, "90.00")
	assertAmount(t, "tax", inv.TaxAmount, "17.10")
	assertAmount(t, "total", inv.TotalAmount, "107.10")
	if !inv.TaxIncluded {
		t.Fatal("invoice should record tax-inclusive pricing")
	}
}

func TestCreate_SequentialNumbersPerYear(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := dbtest.Order(t, f.db, "B-1", [2]string{"1", "10"})
	b := dbtest.Order(t, f.db, "B-2", [2]string{"1", "10"})
	c := dbtest.Order(t, f.db, "B-3", [2]string{"1", "10"})

	first, err := f.invoices.Create(ctx, CreateParams{OrderID: a.ID})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.invoices.Create(ctx, CreateParams{OrderID: b.ID})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	f.invoices.now = func() time.Time { return time.Date(2027, 1, 2, 9, 0, 0, 0, time.UTC) }
	third, err := f.invoices.Create(ctx, CreateParams{OrderID: c.ID})
	if err != nil {
		t.Fatalf("third: %v", err)
	}

	got := []string{first.Number, second.Number, third.Number}
	want := []string{"RG-2026-00001", "RG-2026-00002", "RG-2027-00001"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("numbers = %v, want %v", got, want)
		}
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	f := newFixture(t, true)
	o := dbtest.Order(t, f.db, "B-5", [2]string{"3", "80"})
	ctx := context.Background()

	first, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice, got %v", err)
	}
	var dup *DuplicateInvoiceError
	if !errors.As(err, &dup) || dup.InvoiceNumber != first.Number {
		t.Fatalf("expected duplicate naming %s, got %v", first.Number, err)
	}

	var n int64
	f.db.Model(&models.Invoice{}).Where("order_id = ?", o.ID).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 invoice, got %d", n)
	}
}

// The unique index rejects a second invoice even when the pre-check is skipped.
func TestPersist_UniqueOrderConstraint(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	o := dbtest.Order(t, f.db, "B-6", [2]string{"1", "50"})
	if _, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID}); err != nil {
		t.Fatalf("create: %v", err)
	}

	settings, err := f.settings.Load(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	order, _, err := f.invoices.resolveOrder(ctx, o.ID, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	inv, err := f.invoices.build(order, settings, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	err = f.invoices.persist(ctx, order, false, inv, settings.NumberPrefix)
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice, got %v", err)
	}

	// the failed transaction must not consume a number
	var seq models.InvoiceSequence
	if err := f.db.Where("name = ?", "invoice-2026").First(&seq).Error; err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if seq.Value != 1 {
		t.Fatalf("sequence = %d, want 1", seq.Value)
	}
}

func TestCreate_UnknownOrder(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.invoices.Create(context.Background(), CreateParams{OrderID: 999})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreate_MalformedOrderItems(t *testing.T) {
	f := newFixture(t, true)
	o := models.Order{
		OrderNumber:  "B-7",
		CustomerName: "Max",
		Items: []models.OrderItem{{
			ProductName: "Fichte",
			UnitPrice:   decimal.NewNullDecimal(dec("60")),
		}},
	}
	if err := f.db.Create(&o).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.invoices.Create(context.Background(), CreateParams{OrderID: o.ID})
	if !errors.Is(err, ErrMalformedOrderData) {
		t.Fatalf("expected ErrMalformedOrderData, got %v", err)
	}
	var me *tax.MalformedOrderDataError
	if !errors.As(err, &me) || me.Field != "items[0].quantity" {
		t.Fatalf("unexpected error %v", err)
	}
	var n int64
	f.db.Model(&models.Invoice{}).Count(&n)
	if n != 0 {
		t.Fatalf("no invoice expected, got %d", n)
	}
}

func TestCreate_FromOrderData(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	var data OrderData
	raw := `{"orderNumber":"WEB-77","customerName":"Eva Lang","deliveryPrice":"19",
		"items":[{"productName":"Eiche 25cm","quantity":2,"unitPrice":"50.00"}]}`
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}

	inv, err := f.invoices.Create(ctx, CreateParams{OrderData: &data})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertAmount(t, "subtotal", inv.SubtotalAmount, "119.00")
	assertAmount(t, "tax", inv.TaxAmount, "22.61")
	assertAmount(t, "total", inv.TotalAmount, "141.61")
	if len(inv.Items) != 2 || inv.Items[1].Unit != "psch." {
		t.Fatalf("expected delivery line, got %+v", inv.Items)
	}

	var o models.Order
	if err := f.db.Where("order_number = ?", "WEB-77").First(&o).Error; err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if inv.OrderID != o.ID {
		t.Fatalf("invoice order %d, want %d", inv.OrderID, o.ID)
	}

	_, err = f.invoices.Create(ctx, CreateParams{OrderData: &data})
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice on resubmission, got %v", err)
	}
}

func TestCreate_OrderDataConflictsWithStoredOrder(t *testing.T) {
	f := newFixture(t, true)
	dbtest.Order(t, f.db, "WEB-80", [2]string{"2", "50"})

	data := OrderData{
		OrderNumber:  "WEB-80",
		CustomerName: "Anna Huber",
		Items:        []OrderDataItem{{ProductName: "Buche 33cm #1", Quantity: "3", UnitPrice: "50"}},
	}
	_, err := f.invoices.Create(context.Background(), CreateParams{OrderData: &data})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Violations["orderData"] != "conflicts_with_existing_order" {
		t.Fatalf("expected orderData conflict, got %v", err)
	}

	data.Items[0].Quantity = "2"
	inv, err := f.invoices.Create(context.Background(), CreateParams{OrderData: &data})
	if err != nil {
		t.Fatalf("matching snapshot: %v", err)
	}
	assertAmount(t, "total", inv.TotalAmount, "100.00")
}

func TestCreate_OrderDataMalformed(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name  string
		data  OrderData
		field string
	}{
		{"no items", OrderData{OrderNumber: "W-1", CustomerName: "A"}, "items"},
		{"bad quantity", OrderData{OrderNumber: "W-2", CustomerName: "A", Items: []OrderDataItem{{ProductName: "Buche", Quantity: "abc", UnitPrice: "5"}}}, "items[0].quantity"},
		{"missing price", OrderData{OrderNumber: "W-3", CustomerName: "A", Items: []OrderDataItem{{ProductName: "Buche", Quantity: "1"}}}, "items[0].unit_price"},
		{"bad delivery", OrderData{OrderNumber: "W-4", CustomerName: "A", DeliveryPrice: "-3", Items: []OrderDataItem{{ProductName: "Buche", Quantity: "1", UnitPrice: "5"}}}, "deliveryPrice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			_, err := f.invoices.Create(context.Background(), CreateParams{OrderData: &data})
			var me *tax.MalformedOrderDataError
			if !errors.As(err, &me) {
				t.Fatalf("expected MalformedOrderDataError, got %v", err)
			}
			if me.Field != tt.field {
				t.Fatalf("field = %s, want %s", me.Field, tt.field)
			}
		})
	}
}

func TestCreate_RequiresOneSource(t *testing.T) {
	f := newFixture(t, true)
	var ve *ValidationError
	if _, err := f.invoices.Create(context.Background(), CreateParams{}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_CustomNumber(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := dbtest.Order(t, f.db, "B-10", [2]string{"1", "10"})
	b := dbtest.Order(t, f.db, "B-11", [2]string{"1", "10"})

	inv, err := f.invoices.Create(ctx, CreateParams{OrderID: a.ID, InvoiceNumber: "ALT-2025-117"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Number != "ALT-2025-117" || inv.Sequence != 0 {
		t.Fatalf("got %s (seq %d)", inv.Number, inv.Sequence)
	}

	_, err = f.invoices.Create(ctx, CreateParams{OrderID: b.ID, InvoiceNumber: "ALT-2025-117"})
	if !errors.Is(err, ErrDuplicateNumber) {
		t.Fatalf("expected ErrDuplicateNumber, got %v", err)
	}
}

func TestCreate_SkipsManuallyTakenNumbers(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	orders := make([]models.Order, 4)
	for i := range orders {
		orders[i] = dbtest.Order(t, f.db, fmt.Sprintf("B-2%d", i), [2]string{"1", "10"})
	}

	for i, number := range []string{"RG-2026-00001", "RG-2026-00002"} {
		if _, err := f.invoices.Create(ctx, CreateParams{OrderID: orders[i].ID, InvoiceNumber: number}); err != nil {
			t.Fatalf("create %s: %v", number, err)
		}
	}

	for i, want := range []string{"RG-2026-00003", "RG-2026-00004"} {
		inv, err := f.invoices.Create(ctx, CreateParams{OrderID: orders[i+2].ID})
		if err != nil {
			t.Fatalf("automatic create %d: %v", i, err)
		}
		if inv.Number != want || inv.Sequence != int64(3+i) {
			t.Fatalf("got %s (seq %d), want %s", inv.Number, inv.Sequence, want)
		}
	}
}

func TestCreate_LockedOrder(t *testing.T) {
	f := newFixture(t, true)
	locker := locks.NewMemoryLocker()
	f.invoices.locker = locker
	o := dbtest.Order(t, f.db, "B-12", [2]string{"1", "10"})

	release, err := locker.Obtain(context.Background(), fmt.Sprintf("invoice:order:%d", o.ID), time.Minute)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	defer release(context.Background())

	_, err = f.invoices.Create(context.Background(), CreateParams{OrderID: o.ID})
	if !errors.Is(err, locks.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestNumberString_UnmarshalJSON(t *testing.T) {
	var v struct {
		A NumberString `json:"a"`
		B NumberString `json:"b"`
		C NumberString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.5,"b":"7","c":null}`), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.A != "12.5" || v.B != "7" || v.C != "" {
		t.Fatalf("got %+v", v)
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	o := dbtest.Order(t, f.db, "B-20", [2]string{"1", "10"})
	inv, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.invoices.UpdateStatus(ctx, inv.Number, models.InvoiceStatusPaid); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("draft -> paid should be rejected, got %v", err)
	}
	if _, err := f.invoices.UpdateStatus(ctx, inv.Number, models.InvoiceStatusSent); err != nil {
		t.Fatalf("draft -> sent: %v", err)
	}
	paid, err := f.invoices.UpdateStatus(ctx, inv.Number, models.InvoiceStatusPaid)
	if err != nil {
		t.Fatalf("sent -> paid: %v", err)
	}
	if paid.PaidAt == nil || !paid.PaidAt.Equal(testNow) {
		t.Fatalf("paid_at = %v", paid.PaidAt)
	}
	if _, err := f.invoices.UpdateStatus(ctx, inv.Number, models.InvoiceStatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("paid is terminal, got %v", err)
	}
	if _, err := f.invoices.UpdateStatus(ctx, inv.Number, models.InvoiceStatusOverdue); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("overdue is never stored, got %v", err)
	}
	var ve *ValidationError
	if _, err := f.invoices.UpdateStatus(ctx, inv.Number, "archived"); !errors.As(err, &ve) {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}

	stored, _ := f.invoices.GetByNumber(ctx, inv.Number)
	if stored.Status != models.InvoiceStatusPaid || stored.PaidAt == nil {
		t.Fatalf("stored = %s, paid_at %v", stored.Status, stored.PaidAt)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.InvoiceStatus
		want     bool
	}{
		{models.InvoiceStatusDraft, models.InvoiceStatusSent, true},
		{models.InvoiceStatusDraft, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusSent, models.InvoiceStatusPaid, true},
		{models.InvoiceStatusSent, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusSent, models.InvoiceStatusDraft, false},
		{models.InvoiceStatusCancelled, models.InvoiceStatusDraft, false},
		{models.InvoiceStatusPaid, models.InvoiceStatusSent, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestList_FiltersOverdue(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := dbtest.Order(t, f.db, "B-30", [2]string{"1", "10"})
	b := dbtest.Order(t, f.db, "B-31", [2]string{"1", "10"})
	sent, err := f.invoices.Create(ctx, CreateParams{OrderID: a.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.invoices.Create(ctx, CreateParams{OrderID: b.ID}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.invoices.UpdateStatus(ctx, sent.Number, models.InvoiceStatusSent); err != nil {
		t.Fatalf("send: %v", err)
	}

	all, total, err := f.invoices.List(ctx, InvoiceFilter{})
	if err != nil || total != 2 || len(all) != 2 {
		t.Fatalf("list all: %d/%d %v", len(all), total, err)
	}

	none, _, err := f.invoices.List(ctx, InvoiceFilter{Overdue: true})
	if err != nil || len(none) != 0 {
		t.Fatalf("nothing overdue yet: %d %v", len(none), err)
	}

	f.invoices.now = func() time.Time { return testNow.AddDate(0, 1, 0) }
	overdue, total, err := f.invoices.List(ctx, InvoiceFilter{Overdue: true})
	if err != nil || total != 1 || overdue[0].Number != sent.Number {
		t.Fatalf("overdue = %+v (%d) %v", overdue, total, err)
	}
	if overdue[0].Status != models.InvoiceStatusSent {
		t.Fatalf("overdue must not be persisted, got %s", overdue[0].Status)
	}

	drafts, _, err := f.invoices.List(ctx, InvoiceFilter{Status: models.InvoiceStatusDraft})
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts: %d %v", len(drafts), err)
	}
}

func TestDelete_RemovesInvoiceAndPDF(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	o := dbtest.Order(t, f.db, "B-40", [2]string{"1", "10"})
	inv, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path, err := f.store.Put(ctx, storage.InvoiceKey(inv.Number), []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := f.invoices.AttachPDF(ctx, inv.ID, path); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := f.invoices.Delete(ctx, inv.Number); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.invoices.GetByNumber(ctx, inv.Number); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	var items int64
	f.db.Model(&models.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&items)
	if items != 0 {
		t.Fatalf("items left: %d", items)
	}
	if _, err := f.store.Get(ctx, path); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("pdf should be removed, got %v", err)
	}

	// the order can be invoiced again
	again, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if again.Number != "RG-2026-00002" {
		t.Fatalf("numbers are never reused, got %s", again.Number)
	}

	if err := f.invoices.Delete(ctx, "RG-1999-00001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_MissingPDFIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	o := dbtest.Order(t, f.db, "B-41", [2]string{"1", "10"})
	inv, err := f.invoices.Create(ctx, CreateParams{OrderID: o.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.invoices.AttachPDF(ctx, inv.ID, "invoices/gone.pdf"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := f.invoices.Delete(ctx, inv.Number); err != nil {
		t.Fatalf("delete should ignore missing pdf: %v", err)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber("RG", 2026, 42); got != "RG-2026-00042" {
		t.Fatalf("got %s", got)
	}
	if got := FormatNumber("", 2026, 123456); got != "RG-2026-123456" {
		t.Fatalf("got %s", got)
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/holzhandel-admin/internal/db"
	"github.com/diewo77/holzhandel-admin/internal/events"
	"github.com/diewo77/holzhandel-admin/internal/locks"
	"github.com/diewo77/holzhandel-admin/internal/logging"
	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/render"
	"github.com/diewo77/holzhandel-admin/internal/storage"
	"github.com/diewo77/holzhandel-admin/internal/tax"
)

// NumberString accepts a JSON number or string and keeps its text, so that
// missing or non-numeric amounts can be reported instead of read as zero.
type NumberString string

func (n *NumberString) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumberString(s)
	default:
		*n = NumberString(b)
	}
	return nil
}

// OrderDataItem is one line of a caller-supplied order snapshot.
type OrderDataItem struct {
	ProductID   *uint        `json:"productId,omitempty"`
	ProductName string       `json:"productName" validate:"required,max=255"`
	Unit        string       `json:"unit,omitempty" validate:"max=20"`
	Quantity    NumberString `json:"quantity"`
	UnitPrice   NumberString `json:"unitPrice"`
}

// OrderData is an order snapshot supplied instead of an order id.
type OrderData struct {
	OrderNumber    string          `json:"orderNumber" validate:"required,max=50"`
	CustomerID     *uint           `json:"customerId,omitempty"`
	CustomerName   string          `json:"customerName" validate:"required,max=255"`
	CustomerEmail  string          `json:"customerEmail,omitempty" validate:"omitempty,email"`
	BillingAddress string          `json:"billingAddress,omitempty" validate:"max=1000"`
	DeliveryPrice  NumberString    `json:"deliveryPrice,omitempty"`
	Items          []OrderDataItem `json:"items" validate:"dive"`
}

// toOrder parses the snapshot into an unsaved Order.
func (d OrderData) toOrder() (models.Order, error) {
	o := models.Order{
		OrderNumber:    strings.TrimSpace(d.OrderNumber),
		CustomerID:     d.CustomerID,
		CustomerName:   d.CustomerName,
		CustomerEmail:  d.CustomerEmail,
		BillingAddress: d.BillingAddress,
	}
	if len(d.Items) == 0 {
		return o, &tax.MalformedOrderDataError{Field: "items", Reason: "is empty"}
	}
	for i, it := range d.Items {
		line, err := tax.ParseLine(it.ProductName, string(it.Quantity), string(it.UnitPrice))
		if err != nil {
			var me *tax.MalformedOrderDataError
			if errors.As(err, &me) {
				me.Field = fmt.Sprintf("items[%d].%s", i, me.Field)
			}
			return o, err
		}
		unit := it.Unit
		if unit == "" {
			unit = models.UnitSRM
		}
		o.Items = append(o.Items, models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Unit:        unit,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  decimal.NewNullDecimal(tax.LineTotal(line)),
		})
	}
	if raw := strings.TrimSpace(string(d.DeliveryPrice)); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil || p.IsNegative() {
			return o, &tax.MalformedOrderDataError{Field: "deliveryPrice", Reason: fmt.Sprintf("is not a valid amount (%q)", raw)}
		}
		o.DeliveryPrice = decimal.NewNullDecimal(p)
	}
	return o, nil
}

// CreateParams selects the order to invoice: either OrderID or OrderData.
type CreateParams struct {
	OrderID       uint       `json:"orderId,omitempty"`
	OrderData     *OrderData `json:"orderData,omitempty"`
	InvoiceNumber string     `json:"invoiceNumber,omitempty" validate:"max=50"`
	Notes         string     `json:"notes,omitempty"`
}

// InvoiceFilter narrows List.
type InvoiceFilter struct {
	Status  models.InvoiceStatus
	Overdue bool
	Search  string
	Limit   int
	Offset  int
}

// InvoiceDeps are the collaborators of InvoiceService. Zero values fall
// back to no-op implementations.
type InvoiceDeps struct {
	Locker    locks.Locker
	LockTTL   time.Duration
	Publisher events.Publisher
	Store     storage.Store
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// InvoiceService creates invoices from orders and drives their lifecycle.
type InvoiceService struct {
	db        *gorm.DB
	settings  *SettingsService
	locker    locks.Locker
	lockTTL   time.Duration
	publisher events.Publisher
	store     storage.Store
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewInvoiceService(d *gorm.DB, settings *SettingsService, deps InvoiceDeps) *InvoiceService {
	s := &InvoiceService{
		db:        d,
		settings:  settings,
		locker:    deps.Locker,
		lockTTL:   deps.LockTTL,
		publisher: deps.Publisher,
		store:     deps.Store,
		log:       deps.Logger,
		now:       deps.Now,
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	if s.locker == nil {
		s.locker = locks.NopLocker{}
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	if s.publisher == nil {
		s.publisher = events.LogPublisher{Logger: s.log}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create issues the invoice of one order. The pre-check and the lock only
// shorten the common path; the unique index on invoices.order_id decides.
func (s *InvoiceService) Create(ctx context.Context, p CreateParams) (*models.Invoice, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	switch {
	case p.OrderID == 0 && p.OrderData == nil:
		return nil, invalid("orderId", "required")
	case p.OrderID != 0 && p.OrderData != nil:
		return nil, invalid("orderData", "excluded_with_orderId")
	}

	var snapshot *models.Order
	lockKey := fmt.Sprintf("invoice:order:%d", p.OrderID)
	if p.OrderData != nil {
		o, err := p.OrderData.toOrder()
		if err != nil {
			return nil, err
		}
		snapshot = &o
		lockKey = "invoice:order-number:" + o.OrderNumber
	}

	release, err := s.locker.Obtain(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).WithField("key", lockKey).Warn("release invoice lock")
		}
	}()

	order, isNew, err := s.resolveOrder(ctx, p.OrderID, snapshot)
	if err != nil {
		return nil, err
	}
	if !isNew {
		if existing, err := s.ForOrder(ctx, order.ID); err == nil {
			return nil, &DuplicateInvoiceError{OrderID: order.ID, InvoiceNumber: existing.Number}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := s.build(order, settings, p)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, order, isNew, inv, settings.NumberPrefix); err != nil {
		return nil, err
	}

	s.emit(ctx, events.Event{Type: events.InvoiceCreated, InvoiceNumber: inv.Number, OrderID: inv.OrderID, Status: string(inv.Status)})
	return inv, nil
}

// resolveOrder loads the order by id, or finds/keeps the snapshot by number.
func (s *InvoiceService) resolveOrder(ctx context.Context, id uint, snapshot *models.Order) (*models.Order, bool, error) {
	var o models.Order
	q := s.db.WithContext(ctx).Preload("Customer").Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") })
	if snapshot == nil {
		err := q.First(&o, id).Error
		if err != nil {
			return nil, false, notFound(err, fmt.Sprintf("order %d", id))
		}
		return &o, false, nil
	}
	err := q.Where("order_number = ?", snapshot.OrderNumber).First(&o).Error
	switch {
	case err == nil:
		if !sameOrderContent(&o, snapshot) {
			return nil, false, invalid("orderData", "conflicts_with_existing_order")
		}
		return &o, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return snapshot, true, nil
	default:
		return nil, false, err
	}
}

// sameOrderContent reports whether a supplied snapshot describes the stored
// order: same customer, delivery and lines.
func sameOrderContent(stored, snapshot *models.Order) bool {
	if stored.CustomerName != snapshot.CustomerName || len(stored.Items) != len(snapshot.Items) {
		return false
	}
	if !stored.DeliveryPrice.Decimal.Equal(snapshot.DeliveryPrice.Decimal) {
		return false
	}
	for i, a := range stored.Items {
		b := snapshot.Items[i]
		if a.ProductName != b.ProductName ||
			!a.Quantity.Decimal.Equal(b.Quantity.Decimal) ||
			!a.UnitPrice.Decimal.Equal(b.UnitPrice.Decimal) {
			return false
		}
	}
	return true
}

// build computes totals and items with the given settings.
func (s *InvoiceService) build(o *models.Order, settings models.InvoiceSettings, p CreateParams) (*models.Invoice, error) {
	lines, err := render.OrderLines(*o)
	if err != nil {
		return nil, err
	}
	totals, err := tax.Calculate(lines, tax.Settings{VATRate: settings.VATRate, TaxIncluded: settings.DefaultTaxIncluded})
	if err != nil {
		return nil, err
	}

	day := render.Day(s.now())
	inv := &models.Invoice{
		PublicID:        uuid.New(),
		Number:          strings.TrimSpace(p.InvoiceNumber),
		CustomerID:      o.CustomerID,
		InvoiceDate:     day,
		DueDate:         day.AddDate(0, 0, settings.PaymentTermsDays),
		Status:          models.InvoiceStatusDraft,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		BillingAddress:  o.BillingAddress,
		OrderNumberSnap: o.OrderNumber,
		SubtotalAmount:  totals.Subtotal,
		TaxAmount:       totals.Tax,
		TotalAmount:     totals.Total,
		TaxIncluded:     settings.DefaultTaxIncluded,
		PaymentTerms:    render.PaymentTermsText(settings.PaymentTermsDays),
		Notes:           p.Notes,
	}
	if o.Customer != nil && inv.BillingAddress == "" {
		inv.BillingAddress = o.Customer.FullAddress()
	}
	for i, l := range lines {
		unit := render.DeliveryUnit
		if i < len(o.Items) {
			unit = o.Items[i].Unit
			if unit == "" {
				unit = models.UnitSRM
			}
		}
		inv.Items = append(inv.Items, models.InvoiceItem{
			Description: l.Description,
			Quantity:    l.Quantity.Decimal,
			Unit:        unit,
			UnitPrice:   l.UnitPrice.Decimal,
			TotalPrice:  tax.LineTotal(l),
			TaxRate:     settings.VATRate,
			Position:    i + 1,
		})
	}
	return inv, nil
}

// persist writes order (when new), number and invoice in one transaction.
func (s *InvoiceService) persist(ctx context.Context, o *models.Order, isNew bool, inv *models.Invoice, prefix string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isNew {
			if err := tx.Create(o).Error; err != nil {
				return fmt.Errorf("create order: %w", err)
			}
		}
		inv.OrderID = o.ID
		if inv.Number == "" {
			seq, number, err := nextFreeNumber(tx, prefix, inv.InvoiceDate.Year())
			if err != nil {
				return err
			}
			inv.Sequence = seq
			inv.Number = number
		}
		return tx.Create(inv).Error
	})
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		if existing, ferr := s.ForOrder(ctx, o.ID); ferr == nil {
			return &DuplicateInvoiceError{OrderID: o.ID, InvoiceNumber: existing.Number}
		}
		var n int64
		if s.db.WithContext(ctx).Model(&models.Invoice{}).Where("invoice_number = ?", inv.Number).Count(&n); n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, inv.Number)
		}
		// the same order number was inserted concurrently
		return &DuplicateInvoiceError{OrderID: o.ID}
	}
	return fmt.Errorf("create invoice: %w", err)
}

// FormatNumber renders an invoice number such as RG-2026-00042.
func FormatNumber(prefix string, year int, seq int64) string {
	if prefix == "" {
		prefix = "RG"
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// maxSequenceSkips bounds how many numbers taken by caller-supplied
// invoice numbers are stepped over in one allocation.
const maxSequenceSkips = 1000

// nextFreeNumber advances the year's counter until the formatted number is
// not in use. Numbers taken by manual invoices are skipped and never reused.
func nextFreeNumber(tx *gorm.DB, prefix string, year int) (int64, string, error) {
	name := db.SequenceName(year)
	for i := 0; i < maxSequenceSkips; i++ {
		seq, err := nextSequence(tx, name)
		if err != nil {
			return 0, "", err
		}
		number := FormatNumber(prefix, year, seq)
		var n int64
		if err := tx.Model(&models.Invoice{}).Where("invoice_number = ?", number).Count(&n).Error; err != nil {
			return 0, "", fmt.Errorf("check invoice number %s: %w", number, err)
		}
		if n == 0 {
			return seq, number, nil
		}
	}
	return 0, "", fmt.Errorf("sequence %s: no free number after %d attempts", name, maxSequenceSkips)
}

// nextSequence increments the named counter inside tx. The UPDATE holds the
// row lock until the surrounding transaction ends.
func nextSequence(tx *gorm.DB, name string) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.InvoiceSequence{Name: name}).Error; err != nil {
		return 0, fmt.Errorf("init sequence %s: %w", name, err)
	}
	if err := tx.Model(&models.InvoiceSequence{}).Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + 1")).Error; err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", name, err)
	}
	var seq models.InvoiceSequence
	if err := tx.Where("name = ?", name).First(&seq).Error; err != nil {
		return 0, fmt.Errorf("read sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

func withItems(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") })
}

// Get loads an invoice by id.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := withItems(s.db.WithContext(ctx)).First(&inv, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("invoice %d", id))
	}
	return &inv, nil
}

// GetByNumber loads an invoice by its number.
func (s *InvoiceService) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := withItems(s.db.WithContext(ctx)).Where("invoice_number = ?", number).First(&inv).Error; err != nil {
		return nil, notFound(err, "invoice "+number)
	}
	return &inv, nil
}

// ForOrder returns the invoice billing an order.
func (s *InvoiceService) ForOrder(ctx context.Context, orderID uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := withItems(s.db.WithContext(ctx)).Where("order_id = ?", orderID).First(&inv).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("invoice for order %d", orderID))
	}
	return &inv, nil
}

// List returns invoices newest first and the total match count.
func (s *InvoiceService) List(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	switch {
	case f.Overdue || f.Status == models.InvoiceStatusOverdue:
		q = q.Where("status = ? AND due_date < ?", models.InvoiceStatusSent, s.now())
	case f.Status != "":
		q = q.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(invoice_number) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(order_number) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Invoice
	err := q.Order("invoice_date DESC, id DESC").Limit(limit).Offset(max(f.Offset, 0)).Find(&out).Error
	return out, total, err
}

var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusDraft: {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:  {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// CanTransition reports whether from → to is an allowed status change.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves an invoice along draft → sent → paid, or cancels it.
func (s *InvoiceService) UpdateStatus(ctx context.Context, number string, to models.InvoiceStatus) (*models.Invoice, error) {
	if !to.Valid() {
		return nil, invalid("status", "oneof")
	}
	inv, err := s.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	from := inv.Status
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: string(from), To: string(to)}
	}

	updates := map[string]any{"status": to}
	if to == models.InvoiceStatusPaid {
		paidAt := s.now()
		updates["paid_at"] = paidAt
		inv.PaidAt = &paidAt
	}
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", inv.ID, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// changed by another session since it was read
		return nil, &TransitionError{From: string(from), To: string(to)}
	}
	inv.Status = to

	s.emit(ctx, events.Event{Type: events.InvoiceStatusChanged, InvoiceNumber: inv.Number, OrderID: inv.OrderID, Status: string(to)})
	return inv, nil
}

// Delete removes the invoice and its items, then the stored PDF. A failing
// PDF removal is logged and does not fail the deletion.
func (s *InvoiceService) Delete(ctx context.Context, number string) error {
	inv, err := s.GetByNumber(ctx, number)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Invoice{}, inv.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete invoice %s: %w", number, err)
	}

	if inv.PDFPath != "" && s.store != nil {
		if err := s.store.Delete(ctx, inv.PDFPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			logging.LogError(s.log, "services", "InvoiceService.Delete", "remove stored pdf", inv.PDFPath, err)
		}
	}
	s.emit(ctx, events.Event{Type: events.InvoiceDeleted, InvoiceNumber: inv.Number, OrderID: inv.OrderID})
	return nil
}

// AttachPDF records where the rendered PDF of an invoice is stored.
func (s *InvoiceService) AttachPDF(ctx context.Context, id uint, path string) error {
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Update("pdf_path", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *InvoiceService) emit(ctx context.Context, e events.Event) {
	e.At = s.now().UTC()
	if err := s.publisher.Publish(ctx, e); err != nil {
		logging.LogError(s.log, "services", "InvoiceService.emit", string(e.Type), e.InvoiceNumber, err)
	}
}

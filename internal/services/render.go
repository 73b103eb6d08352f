package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/events"
	"github.com/diewo77/holzhandel-admin/internal/logging"
	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/render"
	"github.com/diewo77/holzhandel-admin/internal/storage"
)

// RenderRequest selects what to render. InvoiceID wins over OrderID; an
// order that already has an invoice renders that invoice.
type RenderRequest struct {
	OrderID        uint              `json:"orderId,omitempty"`
	InvoiceID      uint              `json:"invoiceId,omitempty"`
	CustomSettings map[string]string `json:"customSettings,omitempty"`
	SaveToFile     bool              `json:"saveToFile,omitempty"`
	Preview        bool              `json:"preview,omitempty"`
}

// RenderResult holds HTML for previews and PDF bytes otherwise.
type RenderResult struct {
	HTML     []byte
	PDF      []byte
	FileName string
	Path     string
}

// RenderService produces invoice documents from stored invoices or, as a
// pro-forma, from orders that are not invoiced yet.
type RenderService struct {
	db        *gorm.DB
	settings  *SettingsService
	invoices  *InvoiceService
	html      *render.HTMLRenderer
	pdf       render.PDFRenderer
	store     storage.Store
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// RenderDeps are the collaborators of RenderService.
type RenderDeps struct {
	HTML      *render.HTMLRenderer
	PDF       render.PDFRenderer
	Store     storage.Store
	Publisher events.Publisher
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

func NewRenderService(d *gorm.DB, settings *SettingsService, invoices *InvoiceService, deps RenderDeps) *RenderService {
	s := &RenderService{
		db:        d,
		settings:  settings,
		invoices:  invoices,
		html:      deps.HTML,
		pdf:       deps.PDF,
		store:     deps.Store,
		publisher: deps.Publisher,
		log:       deps.Logger,
		now:       deps.Now,
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	if s.publisher == nil {
		s.publisher = events.LogPublisher{Logger: s.log}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Render builds the document, applies draft settings and returns HTML when
// previewing or PDF otherwise. SaveToFile stores the PDF of a real invoice.
func (s *RenderService) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if req.OrderID == 0 && req.InvoiceID == 0 {
		return nil, invalid("orderId", "required")
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.CustomSettings) > 0 {
		if settings, err = render.ApplyOverrides(settings, req.CustomSettings); err != nil {
			return nil, err
		}
	}

	inv, doc, err := s.document(ctx, req, settings)
	if err != nil {
		return nil, err
	}
	if req.SaveToFile && inv == nil {
		return nil, invalid("saveToFile", "requires_invoice")
	}

	if req.Preview {
		out, err := s.html.Render(doc)
		if err != nil {
			return nil, err
		}
		return &RenderResult{HTML: out, FileName: doc.Number + ".html"}, nil
	}

	data, err := s.pdf.RenderPDF(ctx, doc)
	if err != nil {
		logging.LogError(s.log, "services", "RenderService.Render", "render pdf", doc.Number, err)
		return nil, err
	}
	res := &RenderResult{PDF: data, FileName: doc.Number + ".pdf"}
	if !req.SaveToFile {
		return res, nil
	}

	if s.store == nil {
		return nil, errors.New("no document storage configured")
	}
	path, err := s.store.Put(ctx, storage.InvoiceKey(inv.Number), data, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("store pdf: %w", err)
	}
	if err := s.invoices.AttachPDF(ctx, inv.ID, path); err != nil {
		return nil, fmt.Errorf("record pdf path: %w", err)
	}
	res.Path = path

	e := events.Event{Type: events.InvoiceRendered, InvoiceNumber: inv.Number, OrderID: inv.OrderID, PDFPath: path, At: s.now().UTC()}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logging.LogError(s.log, "services", "RenderService.Render", "publish", inv.Number, err)
	}
	return res, nil
}

func (s *RenderService) document(ctx context.Context, req RenderRequest, settings models.InvoiceSettings) (*models.Invoice, render.Document, error) {
	if req.InvoiceID != 0 {
		inv, err := s.invoices.Get(ctx, req.InvoiceID)
		if err != nil {
			return nil, render.Document{}, err
		}
		return inv, render.FromInvoice(*inv, settings), nil
	}

	inv, err := s.invoices.ForOrder(ctx, req.OrderID)
	switch {
	case err == nil:
		return inv, render.FromInvoice(*inv, settings), nil
	case !errors.Is(err, ErrNotFound):
		return nil, render.Document{}, err
	}

	var o models.Order
	err = s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&o, req.OrderID).Error
	if err != nil {
		return nil, render.Document{}, notFound(err, fmt.Sprintf("order %d", req.OrderID))
	}
	doc, err := render.FromOrder(o, settings, s.now())
	return nil, doc, err
}

// RenderInvoice renders a stored invoice by number with the current settings.
// format is "html" or "pdf".
func (s *RenderService) RenderInvoice(ctx context.Context, number, format string) ([]byte, error) {
	inv, err := s.invoices.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	doc := render.FromInvoice(*inv, settings)
	if format == "html" {
		return s.html.Render(doc)
	}
	return s.pdf.RenderPDF(ctx, doc)
}

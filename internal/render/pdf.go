package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=pdf.go -destination=pdf_mock.go -package=render

// PDFRenderer converts a document to PDF bytes. Implementations must honor
// ctx cancellation.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, doc Document) ([]byte, error)
}

// MarotoRenderer draws the document with maroto, without a browser. It
// follows the embedded template's labels and columns but cannot apply a
// custom template.
type MarotoRenderer struct{}

func NewMarotoRenderer() *MarotoRenderer { return &MarotoRenderer{} }

func (MarotoRenderer) RenderPDF(ctx context.Context, doc Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := buildMaroto(doc)
		done <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, &RenderError{Err: r.err}
		}
		return r.data, nil
	}
}

// pdfMoney avoids glyphs outside the core PDF fonts.
func pdfMoney(d decimal.Decimal) string {
	return strings.Replace(FormatMoney(d), "€", "EUR", 1)
}

func buildMaroto(doc Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()
	m := maroto.New(cfg)

	bold := props.Text{Style: fontstyle.Bold}
	right := props.Text{Align: align.Right}
	rightBold := props.Text{Align: align.Right, Style: fontstyle.Bold}
	small := props.Text{Size: 8}

	m.AddRow(6, text.NewCol(6, doc.Customer.Name, bold), text.NewCol(6, doc.Company.Name, rightBold))
	custLines := strings.Split(doc.Customer.Address, "\n")
	compLines := strings.Split(doc.Company.Address, "\n")
	for i := 0; i < max(len(custLines), len(compLines)); i++ {
		var c, k string
		if i < len(custLines) {
			c = custLines[i]
		}
		if i < len(compLines) {
			k = compLines[i]
		}
		m.AddRow(5, text.NewCol(6, c), text.NewCol(6, k, right))
	}

	title := doc.Title
	if doc.Proforma {
		title += " (Entwurf)"
	}
	m.AddRows(text.NewRow(14, title, props.Text{Size: 16, Style: fontstyle.Bold, Top: 6}))
	m.AddRow(5, text.NewCol(4, "Rechnungsnummer"), text.NewCol(8, doc.Number))
	m.AddRow(5, text.NewCol(4, "Rechnungsdatum"), text.NewCol(8, FormatDate(doc.InvoiceDate)))
	m.AddRow(5, text.NewCol(4, "Fällig am"), text.NewCol(8, FormatDate(doc.DueDate)))
	if doc.OrderNumber != "" {
		m.AddRow(5, text.NewCol(4, "Bestellnummer"), text.NewCol(8, doc.OrderNumber))
	}
	m.AddRows(line.NewRow(4))

	m.AddRow(6,
		text.NewCol(1, "Pos.", bold),
		text.NewCol(4, "Beschreibung", bold),
		text.NewCol(1, "Menge", rightBold),
		text.NewCol(2, "Einheit", bold),
		text.NewCol(2, "Einzelpreis", rightBold),
		text.NewCol(2, "Gesamt", rightBold),
	)
	for _, it := range doc.Items {
		m.AddRow(6,
			text.NewCol(1, fmt.Sprint(it.Position)),
			text.NewCol(4, it.Description),
			text.NewCol(1, FormatQuantity(it.Quantity), right),
			text.NewCol(2, it.Unit),
			text.NewCol(2, pdfMoney(it.UnitPrice), right),
			text.NewCol(2, pdfMoney(it.TotalPrice), right),
		)
	}
	m.AddRows(line.NewRow(4))

	netLabel, taxLabel := "Zwischensumme netto", "zzgl. MwSt. "+FormatPercent(doc.VATRate)
	if doc.TaxIncluded {
		netLabel, taxLabel = "Nettobetrag", "enthaltene MwSt. "+FormatPercent(doc.VATRate)
	}
	m.AddRow(5, col.New(6), text.NewCol(4, netLabel), text.NewCol(2, pdfMoney(doc.Totals.Subtotal), right))
	m.AddRow(5, col.New(6), text.NewCol(4, taxLabel), text.NewCol(2, pdfMoney(doc.Totals.Tax), right))
	m.AddRow(6, col.New(6), text.NewCol(4, "Gesamtbetrag", bold), text.NewCol(2, pdfMoney(doc.Totals.Total), rightBold))

	if doc.PaymentTerms != "" {
		m.AddRows(text.NewRow(10, doc.PaymentTerms, props.Text{Top: 4}))
	}
	if doc.Notes != "" {
		m.AddRows(text.NewRow(8, doc.Notes))
	}

	footer := []string{doc.Company.Name}
	if doc.Company.TaxNumber != "" {
		footer = append(footer, "Steuernummer "+doc.Company.TaxNumber)
	}
	if doc.Company.VATID != "" {
		footer = append(footer, "USt-IdNr. "+doc.Company.VATID)
	}
	m.AddRows(line.NewRow(6), text.NewRow(4, strings.Join(footer, " | "), small))
	if doc.Company.IBAN != "" {
		bank := []string{doc.Company.BankName, "Kontoinhaber " + doc.Company.AccountHolder, "IBAN " + doc.Company.IBAN}
		if doc.Company.BIC != "" {
			bank = append(bank, "BIC "+doc.Company.BIC)
		}
		m.AddRows(text.NewRow(4, strings.Join(bank, " | "), small))
	}
	if doc.Company.Footer != "" {
		m.AddRows(text.NewRow(4, doc.Company.Footer, small))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}

// GotenbergRenderer posts the HTML rendition to a Gotenberg instance and
// returns the Chromium-printed PDF.
type GotenbergRenderer struct {
	url    string
	html   *HTMLRenderer
	client *http.Client
}

func NewGotenbergRenderer(baseURL string, html *HTMLRenderer, client *http.Client) *GotenbergRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &GotenbergRenderer{url: strings.TrimRight(baseURL, "/"), html: html, client: client}
}

func (g *GotenbergRenderer) RenderPDF(ctx context.Context, doc Document) ([]byte, error) {
	page, err := g.html.Render(doc)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(page); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/forms/chromium/convert/html", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: gotenberg status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &RenderError{Err: fmt.Errorf("gotenberg status %d: %s", resp.StatusCode, bytes.TrimSpace(data))}
	}
	return data, nil
}

// Retrying bounds each attempt with a timeout and retries transient
// failures. Non-transient errors are returned immediately.
type Retrying struct {
	next    PDFRenderer
	timeout time.Duration
	retries int
	logger  logrus.FieldLogger
}

func NewRetrying(next PDFRenderer, timeout time.Duration, retries int, logger logrus.FieldLogger) *Retrying {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Retrying{next: next, timeout: timeout, retries: retries, logger: logger}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Retrying) RenderPDF(ctx context.Context, doc Document) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &RenderError{Err: err}
		}
		actx, cancel := ctx, context.CancelFunc(func() {})
		if r.timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		data, err := r.next.RenderPDF(actx, doc)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
		r.logger.WithFields(logrus.Fields{
			"invoice_number": doc.Number,
			"attempt":        attempt + 1,
		}).WithError(err).Warn("pdf render attempt failed")
	}
	var re *RenderError
	if errors.As(lastErr, &re) {
		return nil, lastErr
	}
	return nil, &RenderError{Err: lastErr}
}

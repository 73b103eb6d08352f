package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/diewo77/holzhandel-admin/internal/models"
)

func TestInvoicesXLSX(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	paidAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	invoices := []models.Invoice{
		{
			Number:         "RG-2026-00001",
			InvoiceDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			DueDate:        time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
			Status:         models.InvoiceStatusPaid,
			PaidAt:         &paidAt,
			CustomerName:   "Anna Huber",
			SubtotalAmount: decimal.RequireFromString("90.00"),
			TaxAmount:      decimal.RequireFromString("17.10"),
			TotalAmount:    decimal.RequireFromString("107.10"),
		},
		{
			Number:         "RG-2026-00002",
			InvoiceDate:    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			DueDate:        time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC),
			Status:         models.InvoiceStatusSent,
			CustomerName:   "Max Moser",
			SubtotalAmount: decimal.RequireFromString("100.00"),
			TaxAmount:      decimal.RequireFromString("19.00"),
			TotalAmount:    decimal.RequireFromString("119.00"),
		},
	}

	f, err := InvoicesXLSX(invoices, now)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	r, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer r.Close()

	rows, err := r.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Rechnungsnummer", rows[0][0])
	assert.Equal(t, "RG-2026-00001", rows[1][0])
	assert.Equal(t, "paid", rows[1][3])
	assert.Equal(t, "overdue", rows[2][3])
	assert.Equal(t, "Summe", rows[3][5])

	formula, err := r.GetCellFormula(SheetName, "I4")
	require.NoError(t, err)
	assert.Equal(t, "SUM(I2:I3)", formula)

	gross, err := r.GetCellValue(SheetName, "I3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "119", gross)
}

func TestInvoicesXLSX_Empty(t *testing.T) {
	f, err := InvoicesXLSX(nil, time.Now())
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

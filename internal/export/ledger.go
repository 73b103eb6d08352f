// Package export writes the invoice ledger as an Excel workbook.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/diewo77/holzhandel-admin/internal/models"
)

const (
	SheetName   = "Rechnungen"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{
	"Rechnungsnummer", "Rechnungsdatum", "Fällig am", "Status", "Bestellnummer",
	"Kunde", "Netto", "MwSt.", "Brutto", "Bezahlt am",
}

// InvoicesXLSX builds the ledger sheet. Status is the effective status at
// now, so unpaid sent invoices past their due date appear as overdue.
func InvoicesXLSX(invoices []models.Invoice, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	dateFmt := "dd.mm.yyyy"
	date, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		f.Close()
		return nil, err
	}
	moneyFmt := "#,##0.00 €"
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		f.Close()
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			f.Close()
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		f.Close()
		return nil, err
	}

	for i, inv := range invoices {
		row := i + 2
		net, _ := inv.SubtotalAmount.Float64()
		vat, _ := inv.TaxAmount.Float64()
		gross, _ := inv.TotalAmount.Float64()
		values := []any{
			inv.Number,
			inv.InvoiceDate,
			inv.DueDate,
			string(inv.EffectiveStatus(now)),
			inv.OrderNumberSnap,
			inv.CustomerName,
			net,
			vat,
			gross,
			nil,
		}
		if inv.PaidAt != nil {
			values[9] = *inv.PaidAt
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		_ = f.SetCellStyle(SheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("C%d", row), date)
		_ = f.SetCellStyle(SheetName, fmt.Sprintf("J%d", row), fmt.Sprintf("J%d", row), date)
		_ = f.SetCellStyle(SheetName, fmt.Sprintf("G%d", row), fmt.Sprintf("I%d", row), money)
	}

	if n := len(invoices); n > 0 {
		sumRow := n + 2
		_ = f.SetCellValue(SheetName, fmt.Sprintf("F%d", sumRow), "Summe")
		for _, c := range []string{"G", "H", "I"} {
			cell := fmt.Sprintf("%s%d", c, sumRow)
			if err := f.SetCellFormula(SheetName, cell, fmt.Sprintf("SUM(%s2:%s%d)", c, c, sumRow-1)); err != nil {
				f.Close()
				return nil, err
			}
		}
		_ = f.SetCellStyle(SheetName, fmt.Sprintf("F%d", sumRow), fmt.Sprintf("I%d", sumRow), bold)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 18)
	_ = f.SetColWidth(SheetName, "F", "F", 28)
	return f, nil
}

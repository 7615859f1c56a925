// Package export renders rollup buckets as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sompos/internal/domain/rollup"
)

// ContentTypeXLSX is the media type of the workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headings = []string{
	"Day", "Key", "Label", "Quantity", "Revenue", "Cost", "Margin",
	"AvgUnitPrice", "Transactions", "AvgTicket", "Products",
	"Cash", "Card", "Transfer", "DebtAdded", "CashDiscrepancy", "ShiftsClosed",
}

// moneyColumns are 1-based column indexes formatted as money.
var moneyColumns = []int{5, 6, 7, 8, 10, 12, 13, 14, 15, 16}

// Filename suggests an attachment name for a dimension export.
func Filename(dim rollup.Dimension) string {
	return fmt.Sprintf("rollup_%s.xlsx", dim)
}

// Rollups builds a workbook with one sheet named after the dimension.
func Rollups(dim rollup.Dimension, buckets []rollup.Bucket) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := string(dim)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := writeRows(f, sheet, buckets); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// WriteRollups streams the workbook to w.
func WriteRollups(w io.Writer, dim rollup.Dimension, buckets []rollup.Bucket) error {
	f, err := Rollups(dim, buckets)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, buckets []rollup.Bucket) error {
	header := make([]any, len(headings))
	for i, h := range headings {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, b := range buckets {
		row := []any{
			b.Day.Format("2006-01-02"),
			b.Value,
			b.Label,
			b.Quantity.Decimal().InexactFloat64(),
			b.Revenue.InexactFloat64(),
			b.Cost.InexactFloat64(),
			b.Margin().InexactFloat64(),
			b.AverageUnitPrice().InexactFloat64(),
			b.Transactions,
			b.AverageTransaction().InexactFloat64(),
			b.ProductsCount,
			b.CashTotal.InexactFloat64(),
			b.CardTotal.InexactFloat64(),
			b.TransferTotal.InexactFloat64(),
			b.DebtAdded.InexactFloat64(),
			b.Discrepancy.InexactFloat64(),
			b.ShiftsClosed,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return applyStyles(f, sheet, len(buckets)+1)
}

func applyStyles(f *excelize.File, sheet string, lastRow int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	if lastRow > 1 {
		money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
		if err != nil {
			return err
		}
		for _, col := range moneyColumns {
			top, _ := excelize.CoordinatesToCellName(col, 2)
			bottom, _ := excelize.CoordinatesToCellName(col, lastRow)
			if err := f.SetCellStyle(sheet, top, bottom, money); err != nil {
				return err
			}
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

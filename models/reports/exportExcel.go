package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/fieldsync/models"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName   = "Sheet1"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExcelExporter is a row of an exported sheet.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

type collectionSheetRow struct {
	*models.CollectionSheetRow
}

func (r collectionSheetRow) GetCellValues() []interface{} {
	due := ""
	if r.DueDate != nil {
		due = r.DueDate.Format("2006-01-02")
	}
	return []interface{}{
		r.ClientId,
		r.ClientName,
		r.Kind,
		r.AccountNo,
		r.ProductName,
		due,
		r.DueAmount.InexactFloat64(),
		r.Balance.InexactFloat64(),
		r.CurrencyCode,
	}
}

var collectionSheetHeadings = []string{
	"ClientId", "ClientName", "Kind", "AccountNo", "Product", "DueDate", "DueAmount", "Balance", "Currency",
}

// WriteCollectionSheet writes the sheet as an xlsx workbook: a title line, the
// headings, one line per account and the total due.
func WriteCollectionSheet(w io.Writer, sheet *models.CollectionSheet) error {
	rows := make([]ExcelExporter, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		rows = append(rows, collectionSheetRow{r})
	}
	title := fmt.Sprintf("%s (%s)", sheet.Group.Name, time.Now().UTC().Format("2006-01-02"))
	footer := []interface{}{"", "Total", "", "", "", "", sheet.Total.InexactFloat64()}
	return exportExcel(w, title, rows, footer, collectionSheetHeadings...)
}

func exportExcel(w io.Writer, title string, data []ExcelExporter, footer []interface{}, headings ...string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return err
	}

	// headers on row 2
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	rowNo := 3
	for _, d := range data {
		if err := setRow(f, rowNo, d.GetCellValues()); err != nil {
			return err
		}
		rowNo++
	}
	if len(footer) > 0 {
		if err := setRow(f, rowNo, footer); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func setRow(f *excelize.File, rowNo int, values []interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return err
		}
	}
	return nil
}

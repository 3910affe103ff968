package excel

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"syncer/src/schemas"
)

type ExcelHandlerI interface {
	ReadAll(object schemas.ObjectType) ([]schemas.Record, error)
	Upsert(object schemas.ObjectType, records []schemas.Record) error
	WriteAll(object schemas.ObjectType, records []schemas.Record) error
}

// ExcelHandler reads and writes CRM records from/to one workbook. Each
// object type owns a worksheet: row 1 is the header, column A the record id
// and column B updatedAt, remaining columns follow the descriptor's field
// list.
type ExcelHandler struct {
	FilePath string
}

func NewExcelHandler(filePath string) *ExcelHandler {
	return &ExcelHandler{FilePath: filePath}
}

// ReadAll returns every data row of the object's worksheet as a record.
// A missing workbook or sheet means no local records yet, not an error.
// Rows with an empty id column are not-yet-created local records.
func (h *ExcelHandler) ReadAll(object schemas.ObjectType) ([]schemas.Record, error) {
	if _, err := os.Stat(h.FilePath); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := excelize.OpenFile(h.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", h.FilePath, err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(object.SheetName); err != nil || idx == -1 {
		return nil, err
	}

	rows, err := f.GetRows(object.SheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", object.SheetName, err)
	}

	if len(rows) < 2 {
		return nil, nil
	}

	cols := object.Columns()
	var records []schemas.Record
	for idx, row := range rows[1:] {
		record := schemas.Record{}
		empty := true
		for i, col := range cols {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			record[col] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		record[schemas.FieldRowRef] = idx + 2
		records = append(records, record)
	}
	return records, nil
}

// Upsert writes or updates rows matched by id, creating the workbook and
// the sheet when absent. Records without an id are appended.
func (h *ExcelHandler) Upsert(object schemas.ObjectType, records []schemas.Record) error {
	f, err := h.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := h.ensureSheet(f, object); err != nil {
		return err
	}

	rows, err := f.GetRows(object.SheetName)
	if err != nil {
		return err
	}
	rowByID := map[string]int{}
	for idx, row := range rows {
		if idx == 0 || len(row) == 0 || row[0] == "" {
			continue
		}
		rowByID[row[0]] = idx + 1
	}

	nextRow := len(rows) + 1
	if nextRow < 2 {
		nextRow = 2
	}
	for _, record := range records {
		target, ok := rowByID[record.ID()]
		if !ok && record.RowRef() >= 2 {
			// The record came from a row that had no id yet; write back in
			// place rather than appending a duplicate.
			target, ok = record.RowRef(), true
		}
		if !ok {
			target = nextRow
			nextRow++
		}
		if id := record.ID(); id != "" {
			rowByID[id] = target
		}
		if err := h.writeRow(f, object, target, record); err != nil {
			return err
		}
	}

	return f.SaveAs(h.FilePath)
}

// WriteAll rebuilds the object's worksheet from scratch with the given
// records. Existing rows are discarded.
func (h *ExcelHandler) WriteAll(object schemas.ObjectType, records []schemas.Record) error {
	f, err := h.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(object.SheetName); idx != -1 {
		if err := f.DeleteSheet(object.SheetName); err != nil {
			return err
		}
	}
	if err := h.ensureSheet(f, object); err != nil {
		return err
	}

	for i, record := range records {
		if err := h.writeRow(f, object, i+2, record); err != nil {
			return err
		}
	}
	return f.SaveAs(h.FilePath)
}

func (h *ExcelHandler) openOrCreate() (*excelize.File, error) {
	if _, err := os.Stat(h.FilePath); err == nil {
		f, err := excelize.OpenFile(h.FilePath)
		if err != nil {
			return nil, fmt.Errorf("opening workbook %s: %w", h.FilePath, err)
		}
		return f, nil
	}
	return excelize.NewFile(), nil
}

func (h *ExcelHandler) ensureSheet(f *excelize.File, object schemas.ObjectType) error {
	if idx, _ := f.GetSheetIndex(object.SheetName); idx != -1 {
		return nil
	}

	index, err := f.NewSheet(object.SheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	// Drop the default sheet excelize creates in a fresh workbook.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 && len(f.GetSheetList()) > 1 {
		_ = f.DeleteSheet("Sheet1")
	}

	cols := object.Columns()
	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(object.SheetName, cell, col); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:  true,
			Color: "FFFFFF",
			Size:  11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#4472C4"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}
	lastCell, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(object.SheetName, "A1", lastCell, headerStyle); err != nil {
		return err
	}

	lastColName, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(object.SheetName, "A", lastColName, 22); err != nil {
		return err
	}

	return f.SetPanes(object.SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (h *ExcelHandler) writeRow(f *excelize.File, object schemas.ObjectType, row int, record schemas.Record) error {
	for i, col := range object.Columns() {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(object.SheetName, cell, FlattenValue(record[col])); err != nil {
			return err
		}
	}
	return nil
}

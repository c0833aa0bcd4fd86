package importer

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "Books"

var templateHeaders = []string{"Name", "Author", "Publisher", "ISBN", "Description"}

var templateExamples = [][]any{
	{"Don Quixote", "Miguel de Cervantes", "Editorial Real", "9788491049000", "Classic Spanish novel"},
	{"One Hundred Years of Solitude", "Gabriel García Márquez", "Sudamericana", "9788437604947", "Magical realism"},
	{"1984", "George Orwell", "Secker & Warburg", "9788499890944", "Dystopia"},
}

var templateColumnWidths = map[string]float64{
	"A": 30,
	"B": 25,
	"C": 20,
	"D": 15,
	"E": 40,
}

// Template produces a downloadable xlsx example with the canonical headers
// and a few sample rows for users to fill in and re-upload.
func Template() ([]byte, error) {
	workbook := excelize.NewFile()
	defer workbook.Close()

	index, err := workbook.NewSheet(templateSheet)
	if err != nil {
		return nil, err
	}
	workbook.SetActiveSheet(index)
	if err := workbook.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, err := workbook.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
	})
	if err != nil {
		return nil, err
	}

	for col, header := range templateHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := workbook.SetCellValue(templateSheet, cell, header); err != nil {
			return nil, err
		}
	}
	if err := workbook.SetCellStyle(templateSheet, "A1", "E1", headerStyle); err != nil {
		return nil, err
	}

	for rowIdx, example := range templateExamples {
		addr, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return nil, err
		}
		if err := workbook.SetSheetRow(templateSheet, addr, &example); err != nil {
			return nil, err
		}
	}

	for col, width := range templateColumnWidths {
		if err := workbook.SetColWidth(templateSheet, col, col, width); err != nil {
			return nil, err
		}
	}

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write template workbook: %w", err)
	}
	return buf.Bytes(), nil
}

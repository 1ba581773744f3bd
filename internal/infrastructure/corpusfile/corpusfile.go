// Package corpusfile reads and writes prepared chunk tables as CSV or XLSX.
// Columns: chunk_title, chunk_text, description, people_involved (comma separated).
package corpusfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

const sheetName = "chunks"

var columns = []string{"chunk_title", "chunk_text", "description", "people_involved"}

// ReadFile picks the format from the file extension.
func ReadFile(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(f)
	default:
		return nil, fmt.Errorf("unsupported corpus file extension %q", filepath.Ext(path))
	}
}

func ReadCSV(r io.Reader) ([]domain.Chunk, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRows(rows)
}

func ReadXLSX(r io.Reader) ([]domain.Chunk, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	sheet := sheets[0]
	for _, s := range sheets {
		if s == sheetName {
			sheet = s
			break
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]domain.Chunk, error) {
	if len(rows) == 0 {
		return nil, errors.New("corpus file is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	titleCol, ok := index["chunk_title"]
	if !ok {
		return nil, errors.New("corpus file has no chunk_title column")
	}
	textCol, ok := index["chunk_text"]
	if !ok {
		return nil, errors.New("corpus file has no chunk_text column")
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]domain.Chunk, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if len(row) <= titleCol && len(row) <= textCol {
			continue
		}
		title := cell(row, "chunk_title")
		if title == "" {
			return nil, fmt.Errorf("row %d: empty chunk_title", n+2)
		}
		out = append(out, domain.Chunk{
			Title:          title,
			Text:           cell(row, "chunk_text"),
			Description:    cell(row, "description"),
			PeopleInvolved: domain.NormalizePeople(cell(row, "people_involved")),
		})
	}
	return out, nil
}

func WriteXLSXFile(path string, chunks []domain.Chunk) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create xlsx: %w", err)
	}
	if err := WriteXLSX(out, chunks); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func WriteXLSX(w io.Writer, chunks []domain.Chunk) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, chunk := range chunks {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{chunk.Title, chunk.Text, chunk.Description, strings.Join(chunk.PeopleInvolved, ", ")}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

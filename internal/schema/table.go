package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"FlowSentry/internal/model"
)

const utf8BOM = "\ufeff"

// Table is a validated, fully projected flow table.
type Table struct {
	Columns     []string
	HasSourceIP bool
	Records     []model.FlowRecord
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	// Ragged rows are reported per cell by Projection.Record.
	reader.FieldsPerRecord = -1
	return reader
}

func readHeaderRow(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.ErrEmptyTable
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return header, nil
}

func readHeader(reader *csv.Reader, v *Validator) (*Projection, error) {
	header, err := readHeaderRow(reader)
	if err != nil {
		return nil, err
	}
	return v.Project(header)
}

// ReadCells reads the header and raw data rows of a flow table without
// coercing them. The header must satisfy v. maxRows bounds memory; zero or
// negative means unbounded.
func ReadCells(r io.Reader, v *Validator, maxRows int) ([]string, [][]string, error) {
	reader := newReader(r)
	header, err := readHeaderRow(reader)
	if err != nil {
		return nil, nil, err
	}
	if _, err := v.Project(header); err != nil {
		return nil, nil, err
	}

	var rows [][]string
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row %d: %w", len(rows)+model.HeaderRowOffset, err)
		}
		if maxRows > 0 && len(rows) >= maxRows {
			return nil, nil, fmt.Errorf("table has more than %d rows: %w", maxRows, model.ErrTooManyRows)
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

// ReadTable reads a CSV flow table, validating the header before any row is
// coerced. maxRows bounds memory; zero or negative means unbounded.
func ReadTable(r io.Reader, v *Validator, maxRows int) (*Table, error) {
	reader := newReader(r)
	proj, err := readHeader(reader, v)
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: proj.Columns(), HasSourceIP: proj.HasSourceIP()}
	for i := 0; ; i++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row := i + model.HeaderRowOffset
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if maxRows > 0 && i >= maxRows {
			return nil, fmt.Errorf("table has more than %d rows: %w", maxRows, model.ErrTooManyRows)
		}
		rec, err := proj.Record(row, cells)
		if err != nil {
			return nil, err
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// ReadRow streams to the index-th data row (1-based) and projects only that
// row. The rest of the file is never materialised.
func ReadRow(r io.Reader, v *Validator, index int) (*Table, error) {
	if index < 1 {
		return nil, fmt.Errorf("row %d: %w", index, model.ErrRowOutOfRange)
	}
	reader := newReader(r)
	proj, err := readHeader(reader, v)
	if err != nil {
		return nil, err
	}

	for i := 1; ; i++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("row %d of %d: %w", index, i-1, model.ErrRowOutOfRange)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", i+1, err)
		}
		if i != index {
			continue
		}
		rec, err := proj.Record(index+1, cells)
		if err != nil {
			return nil, err
		}
		return &Table{Columns: proj.Columns(), HasSourceIP: proj.HasSourceIP(), Records: []model.FlowRecord{rec}}, nil
	}
}

// CountRows returns the number of data rows after the header.
func CountRows(r io.Reader) (int, error) {
	reader := newReader(r)
	reader.ReuseRecord = true
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
	n := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to read row %d: %w", n+2, err)
		}
		n++
	}
}

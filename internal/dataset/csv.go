package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var rows [][]any
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = ParseCell(cell)
		}
		rows = append(rows, row)
	}

	return New(header, rows)
}

// LoadCSV reads a CSV file from disk.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// WriteCSV writes d with a header row.
func WriteCSV(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.names); err != nil {
		return err
	}
	record := make([]string, len(d.names))
	for r := 0; r < d.rows; r++ {
		for c := range d.names {
			record[c] = FormatValue(d.cols[c][r])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes d to a file, replacing any existing content.
func SaveCSV(path string, d *Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := WriteCSV(file, d); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

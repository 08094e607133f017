package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// csvFile is an open CSV source with its header already consumed.
type csvFile struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

// openCSV opens path, strips a UTF-8/UTF-16 byte-order mark if present and reads the header row.
func openCSV(path string) (*csvFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoded := transform.NewReader(file, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: missing header row", path)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	return &csvFile{file: file, reader: reader, header: header}, nil
}

func (c *csvFile) Close() error {
	return c.file.Close()
}

// columnIndex maps header names to positions.
func (c *csvFile) columnIndex() map[string]int {
	index := make(map[string]int, len(c.header))
	for i, name := range c.header {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return index
}

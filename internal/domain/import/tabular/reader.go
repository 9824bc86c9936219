package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUnreadable      = errors.New("file could not be read")
)

// FileType identifies the container format of a statement file.
type FileType string

const (
	FileCSV  FileType = "csv"
	FileXLSX FileType = "xlsx"
	FileXLS  FileType = "xls"
)

// MaxRows bounds how many rows are read from a single file.
const MaxRows = 200000

// Preferred sheet names for spreadsheet statements (PT/EN/ES)
var preferredSheets = []string{"movimentos", "transactions", "transações", "extrato", "statement", "movimientos"}

// DetectFileType decides the container from magic bytes, then the extension.
func DetectFileType(fileName string, data []byte) FileType {
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FileXLSX
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		return FileXLS
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FileXLSX
	case ".xls":
		return FileXLS
	default:
		return FileCSV
	}
}

// Read turns a statement file into a grid. It fails with a structural
// error when the file cannot be read or holds no rows.
func Read(fileName string, data []byte) (*Grid, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		grid *Grid
		err  error
	)
	switch DetectFileType(fileName, data) {
	case FileXLSX:
		grid, err = ReadXLSX(fileName, bytes.NewReader(data))
	case FileXLS:
		grid, err = ReadXLS(fileName, bytes.NewReader(data))
	default:
		grid, err = ReadCSV(fileName, data)
	}
	if err != nil {
		return nil, err
	}
	if grid.Len() == 0 {
		return nil, ErrEmptyFile
	}
	return grid, nil
}

// ReadCSV decodes delimited text. The delimiter is detected from the first
// lines; UTF-8 BOMs are stripped and non UTF-8 input is decoded as Windows-1252.
func ReadCSV(fileName string, data []byte) (*Grid, error) {
	data, err := NormalizeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	reader := gocsv.LazyCSVReader(bytes.NewReader(data))
	if r, ok := reader.(*csv.Reader); ok {
		r.Comma = DetectDelimiter(data)
		r.FieldsPerRecord = -1
	}

	var records [][]string
	for len(records) < MaxRows {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		records = append(records, rec)
	}
	return NewGrid(fileName, records), nil
}

// ReadXLSX reads the most likely transaction sheet of a workbook.
func ReadXLSX(fileName string, r io.Reader) (*Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheet := findTransactionSheet(f.GetSheetList())
	if sheet == "" {
		return nil, ErrEmptyFile
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() && len(records) < MaxRows {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		records = append(records, cols)
	}

	grid := NewGrid(fileName, records)
	grid.Sheet = sheet
	return grid, nil
}

// ReadXLS reads the first sheet of a legacy BIFF workbook.
func ReadXLS(fileName string, r io.ReadSeeker) (*Grid, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: no workbook stream", ErrUnreadable)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyFile
	}
	// ReadAllCells walks sheets in order; capping at the first sheet's
	// row count keeps later sheets out of the grid.
	limit := int(sheet.MaxRow) + 1
	if limit > MaxRows {
		limit = MaxRows
	}

	grid := NewGrid(fileName, wb.ReadAllCells(limit))
	grid.Sheet = sheet.Name
	return grid, nil
}

// NormalizeText strips a UTF-8 BOM and converts Windows-1252 input to UTF-8.
func NormalizeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}

// DetectDelimiter picks the delimiter that splits the first lines into the
// most consistent number of fields. Preamble lines are tolerated because
// the most frequent non-zero count wins.
func DetectDelimiter(data []byte) rune {
	lines := strings.Split(string(data), "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}

	best, bestScore := ',', 0
	for _, d := range []rune{';', '\t', ',', '|'} {
		counts := make(map[int]int)
		for _, line := range lines {
			if n := strings.Count(line, string(d)); n > 0 {
				counts[n]++
			}
		}
		// Score is lines sharing the modal count, weighted by that count.
		score := 0
		for n, lines := range counts {
			if s := lines*100 + n; lines > 1 && s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func findTransactionSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range preferredSheets {
		for _, s := range sheets {
			if strings.Contains(strings.ToLower(s), preferred) {
				return s
			}
		}
	}
	return sheets[0]
}

package claims

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported claim file format")

var requiredColumns = []string{
	ColServiceDate, ColSubmittedProcedure, ColPlanGroup, ColSubscriberID, ColProviderNPI,
	ColProviderFees, ColAllowedFees, ColMemberCoInsurance, ColMemberCoPay,
}

// ReadFile loads a claim export. sheet selects the worksheet of an .xlsx
// file; empty means the first sheet.
func ReadFile(path, sheet string) ([]RawClaimLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(f, sheet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadCSV parses a CSV export whose header row uses the API column names.
func ReadCSV(r io.Reader) ([]RawClaimLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return linesFromRows(records)
}

// ReadXLSX parses the given worksheet of an Excel export.
func ReadXLSX(r io.Reader, sheet string) ([]RawClaimLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("xlsx has no worksheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return linesFromRows(rows)
}

func linesFromRows(rows [][]string) ([]RawClaimLine, error) {
	if len(rows) == 0 {
		return nil, errors.New("claim file is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("claim file is missing column %q", col)
		}
	}

	var lines []RawClaimLine
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cell := func(col string) RawValue {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return Str("")
			}
			return Str(row[i])
		}
		lines = append(lines, RawClaimLine{
			ServiceDate:        cell(ColServiceDate),
			SubmittedProcedure: cell(ColSubmittedProcedure),
			Quadrant:           cell(ColQuadrant),
			PlanGroup:          cell(ColPlanGroup),
			SubscriberID:       cell(ColSubscriberID),
			ProviderNPI:        cell(ColProviderNPI),
			ProviderFees:       cell(ColProviderFees),
			AllowedFees:        cell(ColAllowedFees),
			MemberCoInsurance:  cell(ColMemberCoInsurance),
			MemberCoPay:        cell(ColMemberCoPay),
		})
	}
	return lines, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

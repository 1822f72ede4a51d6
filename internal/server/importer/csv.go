package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

const (
	maxUploadBytes = 8 << 20
	maxImportRows  = 10000
	dateHeader     = "date"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02.01.2006"}

// ParseCSV reads a header line of column ids followed by data lines. A
// "date" column sets the row date; rows without one get now. Empty cells
// are left out and numeric cells become numbers.
func ParseCSV(r io.Reader, now time.Time) ([]models.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty import", common.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("%w: column %d has no name", common.ErrValidation, i+1)
		}
	}

	var out []models.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		if len(out) == maxImportRows {
			return nil, fmt.Errorf("%w: more than %d rows", common.ErrValidation, maxImportRows)
		}

		row := models.Row{Fields: map[string]any{}, Date: now}
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if strings.EqualFold(header[i], dateHeader) {
				d, err := parseDate(cell)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", common.ErrValidation, line, err)
				}
				row.Date = d
				continue
			}
			row.Fields[header[i]] = cellValue(cell)
		}
		out = append(out, row)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func cellValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Package normalize converts raw grid rows into typed records.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Normalizer parses rows using dates in a fixed source location.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for loc. A nil loc falls back to the source timezone.
func New(loc *time.Location) (*Normalizer, error) {
	if loc == nil {
		l, err := perm.LoadLocation("")
		if err != nil {
			return nil, err
		}
		loc = l
	}
	return &Normalizer{loc: loc}, nil
}

// Normalize maps one positional row to a NormalizedRecord. The visa class and html
// tag cells are ignored.
func (n *Normalizer) Normalize(row perm.RawRow) (perm.NormalizedRecord, error) {
	if len(row) < perm.RawRowWidth {
		return perm.NormalizedRecord{}, fmt.Errorf("%w: row has %d cells, want %d", perm.ErrMalformedResponse, len(row), perm.RawRowWidth)
	}

	employer := strings.TrimSpace(text(row[perm.ColEmployerName]))
	if employer == "" {
		return perm.NormalizedRecord{}, perm.ErrEmptyEmployerName
	}
	caseNumber := strings.TrimSpace(text(row[perm.ColCaseNumber]))
	if caseNumber == "" {
		return perm.NormalizedRecord{}, fmt.Errorf("%w: case number is empty", perm.ErrMalformedResponse)
	}

	internalID, err := integer(row[perm.ColInternalID])
	if err != nil {
		return perm.NormalizedRecord{}, fmt.Errorf("%w: internal id for %s: %v", perm.ErrMalformedResponse, caseNumber, err)
	}

	var dates [3]*time.Time
	for i, col := range []int{perm.ColPostingDate, perm.ColWorkStartDate, perm.ColWorkEndDate} {
		d, err := n.date(row[col])
		if err != nil {
			return perm.NormalizedRecord{}, fmt.Errorf("%w: date column %d for %s: %v", perm.ErrMalformedResponse, col, caseNumber, err)
		}
		dates[i] = d
	}

	c := perm.Case{
		InternalID:    internalID,
		CaseNumber:    caseNumber,
		PostingDate:   dates[0],
		WorkStartDate: dates[1],
		WorkEndDate:   dates[2],
		CaseType:      text(row[perm.ColCaseType]),
		Status:        text(row[perm.ColStatus]),
		JobTitle:      text(row[perm.ColJobTitle]),
		State:         text(row[perm.ColState]),
		JobOrder:      optional(row[perm.ColJobOrder]),
	}
	return perm.NormalizedRecord{EmployerName: employer, Case: c}, nil
}

func (n *Normalizer) date(cell any) (*time.Time, error) {
	s := strings.TrimSpace(text(cell))
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(perm.SourceDateLayout, s, n.loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func text(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func optional(cell any) *string {
	s := text(cell)
	if s == "" {
		return nil
	}
	return &s
}

func integer(cell any) (int64, error) {
	switch v := cell.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		return int64(f), err
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported cell type %T", cell)
	}
}

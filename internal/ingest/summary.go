package ingest

import "time"

// DateSummary reports what one date crawl did.
type DateSummary struct {
	RunID            string        `json:"run_id"`
	Date             time.Time     `json:"date"`
	State            State         `json:"state"`
	Pages            int           `json:"pages"`
	Records          int           `json:"records"`
	Rows             int           `json:"rows"`
	EmployersCreated int           `json:"employers_created"`
	CasesCreated     int           `json:"cases_created"`
	CasesExisting    int           `json:"cases_existing"`
	Duration         time.Duration `json:"duration"`
	Err              error         `json:"-"`
}

// RangeSummary lists per-date outcomes of a range crawl, in date order.
type RangeSummary struct {
	From  time.Time     `json:"from"`
	To    time.Time     `json:"to"`
	Dates []DateSummary `json:"dates"`
}

// Failed returns the dates whose crawl ended in an error.
func (r RangeSummary) Failed() []DateSummary {
	var out []DateSummary
	for _, d := range r.Dates {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// CasesCreated totals newly created cases across the range.
func (r RangeSummary) CasesCreated() int {
	n := 0
	for _, d := range r.Dates {
		n += d.CasesCreated
	}
	return n
}

// event is the payload published on the crawl topics.
type event struct {
	RunID        string    `json:"run_id"`
	Date         string    `json:"date"`
	Pages        int       `json:"pages"`
	Records      int       `json:"records"`
	CasesCreated int       `json:"cases_created"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Package perm defines the PERM case domain shared by the ingestion pipeline.
package perm

import (
	"encoding/json"
	"time"
)

// Employer is the sponsoring business of one or more cases. Name is the business key.
type Employer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Case is one publicly posted labor certification case.
type Case struct {
	ID               int64           `json:"id"`
	InternalID       int64           `json:"internal_id"`
	CaseNumber       string          `json:"case_number"`
	PostingDate      *time.Time      `json:"posting_date,omitempty"`
	WorkStartDate    *time.Time      `json:"work_start_date,omitempty"`
	WorkEndDate      *time.Time      `json:"work_end_date,omitempty"`
	CaseType         string          `json:"case_type"`
	Status           string          `json:"status"`
	JobTitle         string          `json:"job_title"`
	State            string          `json:"state"`
	JobOrder         *string         `json:"job_order,omitempty"`
	CountryOfCitizen *string         `json:"country_of_citizen,omitempty"`
	Application      json.RawMessage `json:"application,omitempty"`
	EmployerID       int64           `json:"employer_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// FilingDate decodes the filing day embedded in the case number.
func (c Case) FilingDate(loc *time.Location) (time.Time, error) {
	return DecodeDate(c.CaseNumber, loc)
}

// Cookie is one harvested session credential.
type Cookie struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RawRow is one positional row of the source grid:
// [internalId, caseNumber, postingDate, caseType, status, employerName,
// workStartDate, workEndDate, jobTitle, state, visaClassId, jobOrder, htmlTag].
type RawRow []any

// RawRowWidth is the number of cells in a well-formed RawRow.
const RawRowWidth = 13

// Positions inside RawRow.
const (
	ColInternalID = iota
	ColCaseNumber
	ColPostingDate
	ColCaseType
	ColStatus
	ColEmployerName
	ColWorkStartDate
	ColWorkEndDate
	ColJobTitle
	ColState
	ColVisaClassID
	ColJobOrder
	ColHTMLTag
)

// PageResult is one validated page of the source grid.
type PageResult struct {
	Rows        []RawRow
	CurrentPage int
	TotalPages  int
	Records     int
	// Raw holds the undecoded response body for archiving.
	Raw []byte
}

// NormalizedRecord is a typed row ready for upsert. Case.EmployerID is unset
// until the employer has been resolved.
type NormalizedRecord struct {
	EmployerName string
	Case         Case
}

// UpsertOutcome reports whether the employer and case were newly created.
type UpsertOutcome struct {
	EmployerID      int64
	CaseID          int64
	EmployerCreated bool
	CaseCreated     bool
}

// CaseFilter narrows case counts. Nil fields are ignored; PostedTo is exclusive.
type CaseFilter struct {
	PostedFrom *time.Time
	PostedTo   *time.Time
	EmployerID *int64
}

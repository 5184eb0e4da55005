package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

const caseColumns = `id, internal_id, case_number, posting_date, case_type, status,
	work_start_date, work_end_date, job_title, state, job_order, country_of_citizen,
	application, employer_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// FindCaseByNumber looks up a case by its exact case number.
func (s *Store) FindCaseByNumber(ctx context.Context, caseNumber string) (perm.Case, error) {
	query := `SELECT ` + caseColumns + `
		FROM cases
		WHERE case_number = $1;`
	c, err := scanCase(s.pool.QueryRow(ctx, query, caseNumber))
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, perm.ErrNotFound) {
			return perm.Case{}, mapped
		}
		return perm.Case{}, fmt.Errorf("find case: %w", err)
	}
	return c, nil
}

// CreateCase inserts a case. A case-number clash yields perm.ErrDuplicateKey.
func (s *Store) CreateCase(ctx context.Context, c perm.Case) (perm.Case, error) {
	query := `
		INSERT INTO cases (
			internal_id,
			case_number,
			posting_date,
			case_type,
			status,
			work_start_date,
			work_end_date,
			job_title,
			state,
			job_order,
			country_of_citizen,
			employer_id
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
		)
		RETURNING ` + caseColumns + `;`

	args := []any{
		c.InternalID,
		c.CaseNumber,
		c.PostingDate,
		c.CaseType,
		c.Status,
		c.WorkStartDate,
		c.WorkEndDate,
		c.JobTitle,
		c.State,
		c.JobOrder,
		c.CountryOfCitizen,
		c.EmployerID,
	}
	created, err := scanCase(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return perm.Case{}, fmt.Errorf("create case: %w", mapError(err))
	}
	return created, nil
}

// CountCases counts cases matching filter.
func (s *Store) CountCases(ctx context.Context, filter perm.CaseFilter) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM cases
		WHERE ($1::timestamptz IS NULL OR posting_date >= $1)
			AND ($2::timestamptz IS NULL OR posting_date < $2)
			AND ($3::bigint IS NULL OR employer_id = $3);
	`
	var n int64
	if err := s.pool.QueryRow(ctx, query, filter.PostedFrom, filter.PostedTo, filter.EmployerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return int(n), nil
}

// ListCases returns matching cases, newest posting date first.
func (s *Store) ListCases(ctx context.Context, filter perm.CaseFilter, limit, offset int) ([]perm.Case, error) {
	query := `SELECT ` + caseColumns + `
		FROM cases
		WHERE ($1::timestamptz IS NULL OR posting_date >= $1)
			AND ($2::timestamptz IS NULL OR posting_date < $2)
			AND ($3::bigint IS NULL OR employer_id = $3)
		ORDER BY posting_date DESC NULLS LAST, id DESC
		LIMIT $4 OFFSET $5;`
	rows, err := s.pool.Query(ctx, query, filter.PostedFrom, filter.PostedTo, filter.EmployerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []perm.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}

// LatestPostingDate returns the newest posting date, or perm.ErrNotFound on an empty table.
func (s *Store) LatestPostingDate(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(posting_date) FROM cases;`
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("latest posting date: %w", err)
	}
	if latest == nil {
		return time.Time{}, perm.ErrNotFound
	}
	return *latest, nil
}

func scanCase(row scanner) (perm.Case, error) {
	var (
		c           perm.Case
		internalID  *int64
		caseType    *string
		jobTitle    *string
		state       *string
		application []byte
	)
	err := row.Scan(
		&c.ID,
		&internalID,
		&c.CaseNumber,
		&c.PostingDate,
		&caseType,
		&c.Status,
		&c.WorkStartDate,
		&c.WorkEndDate,
		&jobTitle,
		&state,
		&c.JobOrder,
		&c.CountryOfCitizen,
		&application,
		&c.EmployerID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return perm.Case{}, err
	}
	if internalID != nil {
		c.InternalID = *internalID
	}
	c.CaseType = deref(caseType)
	c.JobTitle = deref(jobTitle)
	c.State = deref(state)
	if len(application) > 0 {
		c.Application = json.RawMessage(application)
	}
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

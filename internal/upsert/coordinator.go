// Package upsert writes normalized records as find-or-create of employer then case.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Coordinator applies records idempotently. Existing cases are never modified.
type Coordinator struct {
	employers perm.EmployerRepository
	cases     perm.CaseRepository
	logger    *zap.Logger
}

// New builds a Coordinator.
func New(employers perm.EmployerRepository, cases perm.CaseRepository, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{employers: employers, cases: cases, logger: logger}
}

// Apply resolves the employer, then the case. A uniqueness violation on either
// create is absorbed by re-reading the row the concurrent writer inserted.
func (c *Coordinator) Apply(ctx context.Context, rec perm.NormalizedRecord) (perm.UpsertOutcome, error) {
	employer, employerCreated, err := c.resolveEmployer(ctx, rec.EmployerName)
	if err != nil {
		return perm.UpsertOutcome{}, err
	}

	candidate := rec.Case
	candidate.EmployerID = employer.ID
	stored, caseCreated, err := c.resolveCase(ctx, candidate)
	if err != nil {
		return perm.UpsertOutcome{}, err
	}

	if caseCreated {
		c.logger.Debug("case created", zap.String("case_number", stored.CaseNumber))
	} else {
		c.logger.Debug("case already exists", zap.String("case_number", stored.CaseNumber))
	}
	return perm.UpsertOutcome{
		EmployerID:      employer.ID,
		CaseID:          stored.ID,
		EmployerCreated: employerCreated,
		CaseCreated:     caseCreated,
	}, nil
}

func (c *Coordinator) resolveEmployer(ctx context.Context, name string) (perm.Employer, bool, error) {
	found, err := c.employers.FindEmployerByName(ctx, name)
	if err == nil {
		return found, false, nil
	}
	if !errors.Is(err, perm.ErrNotFound) {
		return perm.Employer{}, false, fmt.Errorf("find employer %q: %w", name, err)
	}

	created, err := c.employers.CreateEmployer(ctx, name)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, perm.ErrDuplicateKey) {
		return perm.Employer{}, false, fmt.Errorf("create employer %q: %w", name, err)
	}

	found, err = c.employers.FindEmployerByName(ctx, name)
	if err != nil {
		return perm.Employer{}, false, fmt.Errorf("re-read employer %q: %w", name, err)
	}
	return found, false, nil
}

func (c *Coordinator) resolveCase(ctx context.Context, candidate perm.Case) (perm.Case, bool, error) {
	found, err := c.cases.FindCaseByNumber(ctx, candidate.CaseNumber)
	if err == nil {
		return found, false, nil
	}
	if !errors.Is(err, perm.ErrNotFound) {
		return perm.Case{}, false, fmt.Errorf("find case %s: %w", candidate.CaseNumber, err)
	}

	created, err := c.cases.CreateCase(ctx, candidate)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, perm.ErrDuplicateKey) {
		return perm.Case{}, false, fmt.Errorf("create case %s: %w", candidate.CaseNumber, err)
	}

	found, err = c.cases.FindCaseByNumber(ctx, candidate.CaseNumber)
	if err != nil {
		return perm.Case{}, false, fmt.Errorf("re-read case %s: %w", candidate.CaseNumber, err)
	}
	return found, false, nil
}

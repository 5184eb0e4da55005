package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// FindEmployerByName looks up an employer by its exact name.
func (s *Store) FindEmployerByName(ctx context.Context, name string) (perm.Employer, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM employers
		WHERE name = $1;
	`
	var e perm.Employer
	err := s.pool.QueryRow(ctx, query, name).Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, perm.ErrNotFound) {
			return perm.Employer{}, mapped
		}
		return perm.Employer{}, fmt.Errorf("find employer: %w", err)
	}
	return e, nil
}

// CreateEmployer inserts a new employer. A name clash yields perm.ErrDuplicateKey.
func (s *Store) CreateEmployer(ctx context.Context, name string) (perm.Employer, error) {
	query := `
		INSERT INTO employers (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at;
	`
	var e perm.Employer
	err := s.pool.QueryRow(ctx, query, name).Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return perm.Employer{}, fmt.Errorf("create employer: %w", mapError(err))
	}
	return e, nil
}

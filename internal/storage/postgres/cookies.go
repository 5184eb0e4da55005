package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// LatestCookie returns the most recently created cookie row.
func (s *Store) LatestCookie(ctx context.Context) (perm.Cookie, error) {
	query := `
		SELECT id, content, created_at
		FROM cookies
		ORDER BY created_at DESC, id DESC
		LIMIT 1;
	`
	var c perm.Cookie
	if err := s.pool.QueryRow(ctx, query).Scan(&c.ID, &c.Content, &c.CreatedAt); err != nil {
		if mapped := mapError(err); errors.Is(mapped, perm.ErrNotFound) {
			return perm.Cookie{}, mapped
		}
		return perm.Cookie{}, fmt.Errorf("latest cookie: %w", err)
	}
	return c, nil
}

// CreateCookie appends a harvested cookie.
func (s *Store) CreateCookie(ctx context.Context, content string) (perm.Cookie, error) {
	query := `
		INSERT INTO cookies (content)
		VALUES ($1)
		RETURNING id, content, created_at;
	`
	var c perm.Cookie
	if err := s.pool.QueryRow(ctx, query, content).Scan(&c.ID, &c.Content, &c.CreatedAt); err != nil {
		return perm.Cookie{}, fmt.Errorf("create cookie: %w", err)
	}
	return c, nil
}

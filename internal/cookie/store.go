// Package cookie exposes the most recently harvested source session cookie.
package cookie

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Store reads and appends session cookies. It never caches: cookies expire
// unpredictably and a harvest may land in the middle of a crawl.
type Store struct {
	repo perm.CookieRepository
}

// NewStore wraps a cookie repository.
func NewStore(repo perm.CookieRepository) *Store {
	return &Store{repo: repo}
}

// Latest returns the newest cookie, or perm.ErrNoCookieAvailable when none exists.
func (s *Store) Latest(ctx context.Context) (perm.Cookie, error) {
	c, err := s.repo.LatestCookie(ctx)
	if err != nil {
		if errors.Is(err, perm.ErrNotFound) {
			return perm.Cookie{}, perm.ErrNoCookieAvailable
		}
		return perm.Cookie{}, fmt.Errorf("load latest cookie: %w", err)
	}
	if strings.TrimSpace(c.Content) == "" {
		return perm.Cookie{}, perm.ErrNoCookieAvailable
	}
	return c, nil
}

// Save appends a freshly harvested cookie string. Older rows are kept as history.
func (s *Store) Save(ctx context.Context, content string) (perm.Cookie, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return perm.Cookie{}, errors.New("cookie content is required")
	}
	c, err := s.repo.CreateCookie(ctx, content)
	if err != nil {
		return perm.Cookie{}, fmt.Errorf("save cookie: %w", err)
	}
	return c, nil
}

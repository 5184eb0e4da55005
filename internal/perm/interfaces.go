package perm

import (
	"context"
	"io"
	"time"
)

// EmployerRepository persists employers.
type EmployerRepository interface {
	FindEmployerByName(ctx context.Context, name string) (Employer, error)
	CreateEmployer(ctx context.Context, name string) (Employer, error)
}

// CaseRepository persists cases and answers the reporter's queries.
type CaseRepository interface {
	FindCaseByNumber(ctx context.Context, caseNumber string) (Case, error)
	CreateCase(ctx context.Context, c Case) (Case, error)
	CountCases(ctx context.Context, filter CaseFilter) (int, error)
	ListCases(ctx context.Context, filter CaseFilter, limit, offset int) ([]Case, error)
	// LatestPostingDate returns ErrNotFound when no case has a posting date.
	LatestPostingDate(ctx context.Context) (time.Time, error)
}

// CookieRepository persists harvested cookies. Rows are append-only.
type CookieRepository interface {
	LatestCookie(ctx context.Context) (Cookie, error)
	CreateCookie(ctx context.Context, content string) (Cookie, error)
}

// Publisher pushes crawl lifecycle events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

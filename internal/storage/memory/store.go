package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Store is an in-memory employer/case/cookie store for development and tests.
// It enforces the same uniqueness rules as the Postgres schema.
type Store struct {
	mu         sync.RWMutex
	employers  map[int64]perm.Employer
	byName     map[string]int64
	cases      map[int64]perm.Case
	byNumber   map[string]int64
	cookies    []perm.Cookie
	nextID     int64
	now        func() time.Time
	createHook func(kind string)
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		employers: make(map[int64]perm.Employer),
		byName:    make(map[string]int64),
		cases:     make(map[int64]perm.Case),
		byNumber:  make(map[string]int64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FindEmployerByName looks up an employer by exact name.
func (s *Store) FindEmployerByName(_ context.Context, name string) (perm.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return perm.Employer{}, perm.ErrNotFound
	}
	return s.employers[id], nil
}

// CreateEmployer inserts an employer, failing with perm.ErrDuplicateKey on a name clash.
func (s *Store) CreateEmployer(_ context.Context, name string) (perm.Employer, error) {
	s.beforeCreate("employer")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return perm.Employer{}, perm.ErrDuplicateKey
	}
	s.nextID++
	now := s.now()
	e := perm.Employer{ID: s.nextID, Name: name, CreatedAt: now, UpdatedAt: now}
	s.employers[e.ID] = e
	s.byName[name] = e.ID
	return e, nil
}

// FindCaseByNumber looks up a case by exact case number.
func (s *Store) FindCaseByNumber(_ context.Context, caseNumber string) (perm.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[caseNumber]
	if !ok {
		return perm.Case{}, perm.ErrNotFound
	}
	return s.cases[id], nil
}

// CreateCase inserts a case. The employer must exist.
func (s *Store) CreateCase(_ context.Context, c perm.Case) (perm.Case, error) {
	s.beforeCreate("case")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byNumber[c.CaseNumber]; exists {
		return perm.Case{}, perm.ErrDuplicateKey
	}
	if _, ok := s.employers[c.EmployerID]; !ok {
		return perm.Case{}, perm.ErrNotFound
	}
	s.nextID++
	now := s.now()
	c.ID = s.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	s.cases[c.ID] = c
	s.byNumber[c.CaseNumber] = c.ID
	return c, nil
}

// CountCases counts cases matching filter.
func (s *Store) CountCases(_ context.Context, filter perm.CaseFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.cases {
		if matches(c, filter) {
			n++
		}
	}
	return n, nil
}

// ListCases returns matching cases ordered by posting date, newest first.
func (s *Store) ListCases(_ context.Context, filter perm.CaseFilter, limit, offset int) ([]perm.Case, error) {
	s.mu.RLock()
	out := make([]perm.Case, 0, len(s.cases))
	for _, c := range s.cases {
		if matches(c, filter) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PostingDate, out[j].PostingDate
		switch {
		case pi == nil && pj == nil:
			return out[i].ID > out[j].ID
		case pi == nil:
			return false
		case pj == nil:
			return true
		case pi.Equal(*pj):
			return out[i].ID > out[j].ID
		default:
			return pi.After(*pj)
		}
	})
	if offset >= len(out) {
		return []perm.Case{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// LatestPostingDate returns the newest posting date across all cases.
func (s *Store) LatestPostingDate(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, c := range s.cases {
		if c.PostingDate == nil {
			continue
		}
		if latest == nil || c.PostingDate.After(*latest) {
			latest = c.PostingDate
		}
	}
	if latest == nil {
		return time.Time{}, perm.ErrNotFound
	}
	return *latest, nil
}

// LatestCookie returns the most recently created cookie.
func (s *Store) LatestCookie(_ context.Context) (perm.Cookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cookies) == 0 {
		return perm.Cookie{}, perm.ErrNotFound
	}
	return s.cookies[len(s.cookies)-1], nil
}

// CreateCookie appends a cookie row.
func (s *Store) CreateCookie(_ context.Context, content string) (perm.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := perm.Cookie{ID: s.nextID, Content: content, CreatedAt: s.now()}
	s.cookies = append(s.cookies, c)
	return c, nil
}

// EmployerCount reports the number of stored employers.
func (s *Store) EmployerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.employers)
}

// CaseCount reports the number of stored cases.
func (s *Store) CaseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// OnCreate registers a hook invoked before every employer or case insert.
// Tests use it to simulate a concurrent writer winning the race.
func (s *Store) OnCreate(hook func(kind string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createHook = hook
}

func (s *Store) beforeCreate(kind string) {
	s.mu.RLock()
	hook := s.createHook
	s.mu.RUnlock()
	if hook != nil {
		hook(kind)
	}
}

func matches(c perm.Case, f perm.CaseFilter) bool {
	if f.EmployerID != nil && c.EmployerID != *f.EmployerID {
		return false
	}
	if f.PostedFrom == nil && f.PostedTo == nil {
		return true
	}
	if c.PostingDate == nil {
		return false
	}
	if f.PostedFrom != nil && c.PostingDate.Before(*f.PostedFrom) {
		return false
	}
	if f.PostedTo != nil && !c.PostingDate.Before(*f.PostedTo) {
		return false
	}
	return true
}

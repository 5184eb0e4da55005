package perm

import "errors"

var (
	// ErrMalformedIdentifier signals a case number that is not "<letter>-<yyddd>-<sequence>".
	ErrMalformedIdentifier = errors.New("malformed case number")
	// ErrNoCookieAvailable signals that no session cookie has been harvested yet.
	ErrNoCookieAvailable = errors.New("no session cookie available")
	// ErrEmptyPage signals that the source declared zero records for the requested date.
	ErrEmptyPage = errors.New("source returned an empty page")
	// ErrMalformedResponse signals an envelope or row shape the pipeline does not understand.
	ErrMalformedResponse = errors.New("malformed source response")
	// ErrEmptyEmployerName rejects rows whose employer name is blank.
	ErrEmptyEmployerName = errors.New("employer name is empty")
	// ErrDuplicateKey is returned by repositories when a create hits a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("record not found")
)

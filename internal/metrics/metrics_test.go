package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://lcr-pjr.doleta.gov/index.cfm", "lcr-pjr.doleta.gov"},
		{"mixed case", "https://LCR-PJR.doleta.gov/index.cfm", "lcr-pjr.doleta.gov"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if pagesTotal == nil || casesTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveUpsertLabels(t *testing.T) {
	Init()
	before := testutil.ToFloat64(casesTotal.WithLabelValues("created"))
	beforeExisting := testutil.ToFloat64(employersTotal.WithLabelValues("existing"))

	ObserveUpsert(false, true)

	if got := testutil.ToFloat64(casesTotal.WithLabelValues("created")); got != before+1 {
		t.Errorf("expected created cases to grow by 1, got %f -> %f", before, got)
	}
	if got := testutil.ToFloat64(employersTotal.WithLabelValues("existing")); got != beforeExisting+1 {
		t.Errorf("expected existing employers to grow by 1, got %f -> %f", beforeExisting, got)
	}
}

func TestObservePageAndDate(t *testing.T) {
	Init()
	before := testutil.ToFloat64(pagesTotal.WithLabelValues("empty"))
	ObservePage("empty", 20*time.Millisecond)
	if got := testutil.ToFloat64(pagesTotal.WithLabelValues("empty")); got != before+1 {
		t.Errorf("expected empty pages to grow by 1, got %f -> %f", before, got)
	}

	beforeDates := testutil.ToFloat64(datesTotal.WithLabelValues("failure"))
	ObserveDate("failure")
	if got := testutil.ToFloat64(datesTotal.WithLabelValues("failure")); got != beforeDates+1 {
		t.Errorf("expected failed dates to grow by 1, got %f -> %f", beforeDates, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://lcr-pjr.doleta.gov", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

package sha256

import (
	"testing"
	"time"
)

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New("", nil)
	got := h.Hash([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := h.Hash([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestPassportIsSecretPlusUTCMinute(t *testing.T) {
	t.Parallel()

	h := New("s3cret", nil)
	at := time.Date(2024, 3, 4, 10, 15, 42, 0, time.UTC)
	want := h.Hash([]byte("s3cret2024-03-04 10:15"))
	if got := h.Passport(at); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	if got := h.Passport(at.In(la)); got != want {
		t.Fatal("passport must not depend on the caller's timezone")
	}
}

func TestValidAcceptsNeighbouringMinutes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)
	h := New("s3cret", func() time.Time { return now })

	cases := []struct {
		name string
		pass string
		want bool
	}{
		{"previous minute", h.Passport(now.Add(-time.Minute)), true},
		{"current minute", h.Passport(now), true},
		{"next minute", h.Passport(now.Add(time.Minute)), true},
		{"stale", h.Passport(now.Add(-2 * time.Minute)), false},
		{"empty", "", false},
		{"other secret", New("other", nil).Passport(now), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := h.Valid(tc.pass); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidWithoutSecret(t *testing.T) {
	t.Parallel()

	h := New("", nil)
	if h.Valid(h.Passport(time.Now())) {
		t.Fatal("an empty secret must never validate")
	}
}

package perm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustLA(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	require.NoError(t, err)
	return loc
}

func TestDecodeDate(t *testing.T) {
	t.Parallel()

	loc := mustLA(t)
	cases := []struct {
		caseNumber string
		want       time.Time
	}{
		{"A-170001-00001", time.Date(2017, time.January, 1, 0, 0, 0, 0, loc)},
		{"A-170100-00001", time.Date(2017, time.April, 10, 0, 0, 0, 0, loc)},
		{"A-160366-12345", time.Date(2016, time.December, 31, 0, 0, 0, 0, loc)},
		{"G-100032-99999", time.Date(2010, time.February, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		got, err := DecodeDate(tc.caseNumber, loc)
		require.NoError(t, err, tc.caseNumber)
		require.True(t, tc.want.Equal(got), "%s: want %v got %v", tc.caseNumber, tc.want, got)
		require.Equal(t, loc, got.Location())
	}
}

func TestDecodeDateIsStableAcrossCallerZones(t *testing.T) {
	t.Parallel()

	loc := mustLA(t)
	got, err := DecodeDate("A-170100-00001", loc)
	require.NoError(t, err)

	y, m, d := got.Date()
	require.Equal(t, 2017, y)
	require.Equal(t, time.April, m)
	require.Equal(t, 10, d)
}

func TestDecodeDateRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ABC123", "", "A-170001", "A-170001-00001-9", "A-1-00001", "A-XX0001-00001", "A-17ABC-00001"} {
		_, err := DecodeDate(raw, time.UTC)
		require.ErrorIs(t, err, ErrMalformedIdentifier, raw)
	}
}

func TestDayToken(t *testing.T) {
	t.Parallel()

	token, err := DayToken("A-170100-00001")
	require.NoError(t, err)
	require.Equal(t, "170100", token)

	_, err = DayToken("ABC123")
	require.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestCaseFilingDate(t *testing.T) {
	t.Parallel()

	loc := mustLA(t)
	got, err := Case{CaseNumber: "A-170001-00007"}.FilingDate(loc)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2017, time.January, 1, 0, 0, 0, 0, loc)))
}

func TestYesterday(t *testing.T) {
	t.Parallel()

	loc := mustLA(t)
	// 2017-10-05 03:00 UTC is still 2017-10-04 in Los Angeles.
	now := time.Date(2017, time.October, 5, 3, 0, 0, 0, time.UTC)
	got := Yesterday(now, loc)
	require.True(t, got.Equal(time.Date(2017, time.October, 3, 0, 0, 0, 0, loc)), "got %v", got)
}

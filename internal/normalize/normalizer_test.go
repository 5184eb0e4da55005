package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

func row(overrides map[int]any) perm.RawRow {
	r := perm.RawRow{
		json.Number("1234567"),
		"A-170278-00042",
		"10/05/2017",
		"PERM",
		"Certified",
		"ACME CORP",
		"11/01/2017",
		"",
		"Software Engineer",
		"CA",
		json.Number("6"),
		"",
		"<a href='#'>view</a>",
	}
	for k, v := range overrides {
		r[k] = v
	}
	return r
}

func newNormalizer(t *testing.T) (*Normalizer, *time.Location) {
	t.Helper()
	loc, err := perm.LoadLocation("")
	require.NoError(t, err)
	n, err := New(loc)
	require.NoError(t, err)
	return n, loc
}

func TestNormalizeMapsColumns(t *testing.T) {
	t.Parallel()

	n, loc := newNormalizer(t)
	rec, err := n.Normalize(row(nil))
	require.NoError(t, err)

	require.Equal(t, "ACME CORP", rec.EmployerName)
	c := rec.Case
	require.Equal(t, int64(1234567), c.InternalID)
	require.Equal(t, "A-170278-00042", c.CaseNumber)
	require.Equal(t, "PERM", c.CaseType)
	require.Equal(t, "Certified", c.Status)
	require.Equal(t, "Software Engineer", c.JobTitle)
	require.Equal(t, "CA", c.State)
	require.Nil(t, c.JobOrder)
	require.Nil(t, c.WorkEndDate)
	require.Nil(t, c.CountryOfCitizen)
	require.Zero(t, c.EmployerID)

	require.NotNil(t, c.PostingDate)
	require.True(t, c.PostingDate.Equal(time.Date(2017, time.October, 5, 0, 0, 0, 0, loc)))
	require.Equal(t, loc, c.PostingDate.Location())
	require.True(t, c.WorkStartDate.Equal(time.Date(2017, time.November, 1, 0, 0, 0, 0, loc)))
}

func TestNormalizeAcceptsStringNumbersAndJobOrder(t *testing.T) {
	t.Parallel()

	n, _ := newNormalizer(t)
	rec, err := n.Normalize(row(map[int]any{
		perm.ColInternalID: "99",
		perm.ColJobOrder:   "JO-7",
	}))
	require.NoError(t, err)
	require.Equal(t, int64(99), rec.Case.InternalID)
	require.NotNil(t, rec.Case.JobOrder)
	require.Equal(t, "JO-7", *rec.Case.JobOrder)
}

func TestNormalizeRejectsBlankEmployer(t *testing.T) {
	t.Parallel()

	n, _ := newNormalizer(t)
	for _, name := range []any{"", "   ", nil} {
		_, err := n.Normalize(row(map[int]any{perm.ColEmployerName: name}))
		require.ErrorIs(t, err, perm.ErrEmptyEmployerName)
	}
}

func TestNormalizeRejectsMalformedRows(t *testing.T) {
	t.Parallel()

	n, _ := newNormalizer(t)
	cases := map[string]perm.RawRow{
		"short row":       row(nil)[:12],
		"empty row":       {},
		"blank case":      row(map[int]any{perm.ColCaseNumber: ""}),
		"bad date":        row(map[int]any{perm.ColPostingDate: "2017-10-05"}),
		"bad internal id": row(map[int]any{perm.ColInternalID: "abc"}),
		"odd internal id": row(map[int]any{perm.ColInternalID: []any{1}}),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := n.Normalize(r)
			require.ErrorIs(t, err, perm.ErrMalformedResponse)
		})
	}
}

func TestNewDefaultsLocation(t *testing.T) {
	t.Parallel()

	n, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, perm.SourceTimezone, n.loc.String())
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

func TestStoreEmployerUniqueness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	_, err := store.FindEmployerByName(ctx, "ACME")
	require.ErrorIs(t, err, perm.ErrNotFound)

	created, err := store.CreateEmployer(ctx, "ACME")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = store.CreateEmployer(ctx, "ACME")
	require.ErrorIs(t, err, perm.ErrDuplicateKey)

	found, err := store.FindEmployerByName(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, created, found)
	require.Equal(t, 1, store.EmployerCount())
}

func TestStoreCaseUniquenessAndForeignKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	_, err := store.CreateCase(ctx, perm.Case{CaseNumber: "A-170001-00001", EmployerID: 42})
	require.ErrorIs(t, err, perm.ErrNotFound)

	emp, err := store.CreateEmployer(ctx, "ACME")
	require.NoError(t, err)

	created, err := store.CreateCase(ctx, perm.Case{CaseNumber: "A-170001-00001", EmployerID: emp.ID, Status: "Certified"})
	require.NoError(t, err)

	_, err = store.CreateCase(ctx, perm.Case{CaseNumber: "A-170001-00001", EmployerID: emp.ID, Status: "Denied"})
	require.ErrorIs(t, err, perm.ErrDuplicateKey)

	found, err := store.FindCaseByNumber(ctx, "A-170001-00001")
	require.NoError(t, err)
	require.Equal(t, created, found)
	require.Equal(t, "Certified", found.Status)
}

func TestStoreCountsAndListsByPostingDate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	emp, err := store.CreateEmployer(ctx, "ACME")
	require.NoError(t, err)

	day1 := time.Date(2017, time.October, 4, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	for i, d := range []time.Time{day1, day2, day2} {
		posted := d
		_, err := store.CreateCase(ctx, perm.Case{
			CaseNumber:  []string{"A-170001-00001", "A-170002-00001", "A-170003-00001"}[i],
			EmployerID:  emp.ID,
			PostingDate: &posted,
		})
		require.NoError(t, err)
	}
	_, err = store.CreateCase(ctx, perm.Case{CaseNumber: "A-170004-00001", EmployerID: emp.ID})
	require.NoError(t, err)

	latest, err := store.LatestPostingDate(ctx)
	require.NoError(t, err)
	require.True(t, latest.Equal(day2))

	next := day2.AddDate(0, 0, 1)
	n, err := store.CountCases(ctx, perm.CaseFilter{PostedFrom: &day2, PostedTo: &next})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.CountCases(ctx, perm.CaseFilter{EmployerID: &emp.ID})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	page, err := store.ListCases(ctx, perm.CaseFilter{}, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, page[0].PostingDate.Equal(day2))

	rest, err := store.ListCases(ctx, perm.CaseFilter{}, 10, 3)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, rest[0].PostingDate)
}

func TestStoreLatestPostingDateEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewStore().LatestPostingDate(context.Background())
	require.ErrorIs(t, err, perm.ErrNotFound)
}

func TestStoreCookiesNewestWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()

	_, err := store.LatestCookie(ctx)
	require.ErrorIs(t, err, perm.ErrNotFound)

	_, err = store.CreateCookie(ctx, "a=1;")
	require.NoError(t, err)
	_, err = store.CreateCookie(ctx, "a=2;")
	require.NoError(t, err)

	latest, err := store.LatestCookie(ctx)
	require.NoError(t, err)
	require.Equal(t, "a=2;", latest.Content)
}

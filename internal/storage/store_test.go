package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"costmanager/internal/core"
)

// createTestStore creates a store in a fresh temp directory.
func createTestStore(t *testing.T) *CostStore {
	t.Helper()
	s := New(t.TempDir())
	t.Cleanup(func() { s.Close() })
	return s
}

func newCost(sum, category, date string) core.NewCost {
	return core.NewCost{
		Sum:         decimal.RequireFromString(sum),
		Category:    category,
		Description: category + " on " + date,
		Date:        core.MustParseDate(date),
	}
}

func insertAll(t *testing.T, s *CostStore, costs ...core.NewCost) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(costs))
	for _, c := range costs {
		id, err := s.Insert(context.Background(), c)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func dates(costs []core.Cost) []string {
	out := make([]string, len(costs))
	for i, c := range costs {
		out[i] = c.Date.String()
	}
	return out
}

func TestNew_LazyOpen(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	defer s.Close()

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "database must not exist before first operation")

	_, err = s.All(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "CostManagerDB.sqlite"))
	require.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		s := New(dir)
		require.NoError(t, s.Open(context.Background()), "iteration %d", i)
		require.NoError(t, s.Open(context.Background()), "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_ConcurrentFirstCallers(t *testing.T) {
	s := createTestStore(t)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			return s.Open(context.Background())
		})
	}
	require.NoError(t, g.Wait())

	version, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestOpen_FailureIsStorageError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s := New(filepath.Join(file, "sub"))
	_, err := s.Insert(context.Background(), newCost("1", "Food", "2025-01-01"))
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "open", se.Op)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestVersion(t *testing.T) {
	s := createTestStore(t)
	version, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestInsert_ThenScanContainsRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := core.NewCost{
		Sum:         decimal.RequireFromString("12.50"),
		Category:    "Food",
		Description: "lunch with team",
		Date:        core.MustParseDate("2025-03-14"),
	}
	id, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.Positive(t, id)

	all, err := s.All(ctx)
	require.NoError(t, err)

	var matches []core.Cost
	for _, c := range all {
		if c.ID == id {
			matches = append(matches, c)
		}
	}
	require.Len(t, matches, 1)
	got := matches[0]
	assert.True(t, in.Sum.Equal(got.Sum), "sum %s != %s", in.Sum, got.Sum)
	assert.Equal(t, in.Category, got.Category)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Date.String(), got.Date.String())
}

func TestInsert_RejectsZeroDate(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Insert(context.Background(), core.NewCost{Sum: decimal.NewFromInt(1), Category: "x"})
	require.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestInsert_IDsNotReused(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := insertAll(t, s,
		newCost("1", "A", "2025-01-01"),
		newCost("2", "B", "2025-01-02"),
	)
	require.NoError(t, s.DeleteByID(ctx, ids[1]))

	next := insertAll(t, s, newCost("3", "C", "2025-01-03"))
	assert.Greater(t, next[0], ids[1])
}

func TestDeleteByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := insertAll(t, s,
		newCost("1", "A", "2025-01-01"),
		newCost("2", "B", "2025-01-02"),
	)

	require.NoError(t, s.DeleteByID(ctx, ids[0]))

	all, err := s.All(ctx)
	require.NoError(t, err)
	for _, c := range all {
		assert.NotEqual(t, ids[0], c.ID)
	}
	assert.Len(t, all, 1)

	// deleting again, or deleting something that never existed, is fine
	require.NoError(t, s.DeleteByID(ctx, ids[0]))
	require.NoError(t, s.DeleteByID(ctx, 987654))
}

func TestGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := insertAll(t, s, newCost("4.20", "Transport", "2025-05-05"))

	c, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Transport", c.Category)

	_, err = s.Get(ctx, ids[0]+100)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsStorageError(err))
}

func TestScenario_MonthYearLastN(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// inserted out of order on purpose
	insertAll(t, s,
		newCost("30", "Rent", "2025-02-10"),
		newCost("10", "Food", "2025-01-20"),
		newCost("20", "Food", "2025-01-05"),
	)

	jan, err := s.QueryByMonth(ctx, 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-05", "2025-01-20"}, dates(jan))

	year, err := s.QueryByYear(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-05", "2025-01-20", "2025-02-10"}, dates(year))

	last, err := s.QueryLastN(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-05", "2025-01-20"}, dates(last))

	recent, err := s.QueryRecent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02-10", "2025-01-20"}, dates(recent))
}

func TestQueryByMonth_Boundaries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertAll(t, s,
		newCost("1", "A", "2024-12-31"),
		newCost("1", "A", "2025-01-01"),
		newCost("1", "A", "2025-01-31"),
		newCost("1", "A", "2025-02-01"),
		newCost("1", "A", "2026-01-15"),
	)

	jan, err := s.QueryByMonth(ctx, 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-01-31"}, dates(jan))

	dec, err := s.QueryByMonth(ctx, 12, 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-12-31"}, dates(dec))

	none, err := s.QueryByMonth(ctx, 7, 2025)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	invalid, err := s.QueryByMonth(ctx, 13, 2025)
	require.NoError(t, err)
	assert.Empty(t, invalid)

	y2026, err := s.QueryByYear(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-15"}, dates(y2026))
}

func TestQueryByYear_LastRepresentableYear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertAll(t, s,
		newCost("1", "A", "9998-12-31"),
		newCost("1", "A", "9999-12-01"),
		newCost("1", "A", "9999-12-31"),
	)

	y, err := s.QueryByYear(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, []string{"9999-12-01", "9999-12-31"}, dates(y))

	dec, err := s.QueryByMonth(ctx, 12, 9999)
	require.NoError(t, err)
	assert.Equal(t, []string{"9999-12-01", "9999-12-31"}, dates(dec))
}

func TestQueryLastN_Counts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var costs []core.NewCost
	for day := 20; day >= 1; day-- {
		costs = append(costs, newCost("1", "A", core.NewDate(2025, 3, day).String()))
	}
	insertAll(t, s, costs...)

	tests := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 5, want: 5},
		{n: 20, want: 20},
		{n: 50, want: 20},
		{n: 0, want: DefaultLastN},
		{n: -3, want: DefaultLastN},
	}
	for _, tt := range tests {
		got, err := s.QueryLastN(ctx, tt.n)
		require.NoError(t, err)
		require.Len(t, got, tt.want, "n=%d", tt.n)
		assert.True(t, sort.StringsAreSorted(dates(got)), "n=%d not ascending", tt.n)
		assert.Equal(t, "2025-03-01", got[0].Date.String())
	}
}

func TestQueries_SameDateOrderedByID(t *testing.T) {
	s := createTestStore(t)
	ids := insertAll(t, s,
		newCost("1", "A", "2025-04-01"),
		newCost("2", "B", "2025-04-01"),
		newCost("3", "C", "2025-04-01"),
	)

	got, err := s.QueryByMonth(context.Background(), 4, 2025)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, ids[i], c.ID)
	}
}

func TestQueries_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertAll(t, s,
		newCost("1", "A", "2025-01-05"),
		newCost("2", "B", "2025-06-20"),
	)

	first, err := s.QueryByYear(ctx, 2025)
	require.NoError(t, err)
	second, err := s.QueryByYear(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, dates(first), dates(second))

	l1, err := s.QueryLastN(ctx, 15)
	require.NoError(t, err)
	l2, err := s.QueryLastN(ctx, 15)
	require.NoError(t, err)
	assert.Equal(t, dates(l1), dates(l2))
}

func TestByCategory(t *testing.T) {
	s := createTestStore(t)
	insertAll(t, s,
		newCost("1", "Food", "2025-01-05"),
		newCost("2", "Rent", "2025-01-01"),
		newCost("3", "Food", "2025-01-02"),
	)

	got, err := s.ByCategory(context.Background(), "Food")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-02", "2025-01-05"}, dates(got))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := New(dir)
	id, err := s1.Insert(ctx, newCost("9.99", "Books", "2025-08-08"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2 := New(dir)
	defer s2.Close()
	c, err := s2.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Books", c.Category)
	assert.Equal(t, "9.99", c.Sum.String())
}

func TestCloseThenReuse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertAll(t, s, newCost("1", "A", "2025-01-01"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentInserts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const n = 25
	ids := make([]int64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			id, err := s.Insert(ctx, newCost("1", "A", core.NewDate(2025, 1, i+1).String()))
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[int64]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestCancelledContext(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.QueryByYear(ctx, 2025)
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

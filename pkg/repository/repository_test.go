package repository

import (
	"context"
	"testing"

	"offerwall/pkg/db/option"
	"offerwall/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    int64  `gorm:"column:id;primaryKey"`
	Kind  string `gorm:"column:kind"`
	Score int    `gorm:"column:score"`
}

func seedWidgets(t *testing.T, db *gorm.DB) Repository[widget] {
	t.Helper()
	repo := ProvideStore[widget](db)
	require.NoError(t, repo.BatchCreate(context.Background(), []*widget{
		{ID: 1, Kind: "a", Score: 10},
		{ID: 2, Kind: "a", Score: 30},
		{ID: 3, Kind: "b", Score: 20},
	}))
	return repo
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)

	got, err := repo.FindOne(context.Background(), &widget{ID: 42})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindWithOptions(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := seedWidgets(t, db)
	ctx := context.Background()

	rows, err := repo.Find(ctx, &widget{Kind: "a"}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "score",
		OrderBy: "desc",
		Allow:   map[string]bool{"score": true},
	}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].ID)

	rows, err = repo.Find(ctx, nil, option.ApplyOperator(option.Condition{Field: "score", Operator: option.GT, Value: 15}), option.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	count, err := repo.Count(ctx, nil, option.ApplyOperator(option.Condition{Field: "kind", Operator: option.IN, Value: []string{"a", "b"}}))
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestSortByRejectsUnknownColumn(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := seedWidgets(t, db)

	rows, err := repo.Find(context.Background(), nil, option.WithSortBy(option.QuerySortBy{
		SortBy:  "score; DROP TABLE widgets",
		OrderBy: "desc",
	}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, int64(3), rows[0].ID)
}

func TestUpdateWithinTransaction(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := seedWidgets(t, db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.WithTrx(tx).Update(ctx, int64(3), map[string]any{"score": 99})
	})
	require.NoError(t, err)

	got, err := repo.FindOne(ctx, &widget{ID: 3})
	require.NoError(t, err)
	require.Equal(t, 99, got.Score)
}

package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/invoicepay/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    int64 `gorm:"primaryKey"`
	Owner string
	Name  string
}

func openStore(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(&widget{}))
	require.NoError(t, conn.Create([]widget{
		{ID: 1, Owner: "ada", Name: "a"},
		{ID: 2, Owner: "ada", Name: "b"},
		{ID: 3, Owner: "bola", Name: "c"},
		{ID: 4, Owner: "ada", Name: "d"},
	}).Error)
	return conn
}

func TestFindFiltersAndAppliesOptions(t *testing.T) {
	repo := ProvideStore[widget](openStore(t))

	items, err := repo.Find(context.Background(), &widget{Owner: "ada"},
		option.WithCondition("id < ?", 4),
		option.WithSortBy("id", true),
		option.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ID)
}

func TestFindEmptyFilterReturnsAll(t *testing.T) {
	repo := ProvideStore[widget](openStore(t))

	items, err := repo.Find(context.Background(), &widget{}, option.WithSortBy("id", false))
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "a", items[0].Name)
}

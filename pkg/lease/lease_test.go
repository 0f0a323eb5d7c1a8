package lease

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type job struct {
	ID string `gorm:"column:id;primaryKey"`
	Columns
	UpdatedAt time.Time
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&job{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func TestClaimSkipsRowsHeldByAnotherOwner(t *testing.T) {
	db := newDB(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.Create(&job{ID: id}).Error)
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first, err := Claim(t.Context(), db, &job{}, []string{"a", "b"}, "run-1", 10*time.Minute, now)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, first)

	second, err := Claim(t.Context(), db, &job{}, []string{"a", "b", "c"}, "run-2", 10*time.Minute, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, second)
}

func TestClaimTakesOverExpiredLease(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Create(&job{ID: "a"}).Error)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := Claim(t.Context(), db, &job{}, []string{"a"}, "run-1", 10*time.Minute, now)
	require.NoError(t, err)

	won, err := Claim(t.Context(), db, &job{}, []string{"a"}, "run-2", 10*time.Minute, now.Add(11*time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, won)
}

func TestReleaseFreesRows(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Create(&job{ID: "a"}).Error)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := Claim(t.Context(), db, &job{}, []string{"a"}, "run-1", time.Hour, now)
	require.NoError(t, err)

	// another owner's release is ignored
	require.NoError(t, Release(t.Context(), db, &job{}, []string{"a"}, "run-2"))
	won, err := Claim(t.Context(), db, &job{}, []string{"a"}, "run-2", time.Hour, now)
	require.NoError(t, err)
	require.Empty(t, won)

	require.NoError(t, Release(t.Context(), db, &job{}, []string{"a"}, "run-1"))
	won, err = Claim(t.Context(), db, &job{}, []string{"a"}, "run-2", time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, won)
}

func TestNewOwnerIsUnique(t *testing.T) {
	require.NotEqual(t, NewOwner(), NewOwner())
}

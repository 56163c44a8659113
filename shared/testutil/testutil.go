// Package testutil provides database and Redis fixtures for package tests.
package testutil

import (
	"fmt"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bizworx/bizworx-api/shared/config"
	"github.com/bizworx/bizworx-api/shared/models"
)

// NewDB returns a migrated in-memory database private to the test
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to a memory database must be the same one
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// NewRedis starts a miniredis server and returns a client for it
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// NewLogger returns a logger that discards output
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// SeedBusiness inserts a business directly, bypassing credential hashing
func SeedBusiness(t testing.TB, db *gorm.DB, name string) *models.Business {
	t.Helper()

	b := &models.Business{
		Name:         name,
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "unused",
		IsActive:     true,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

// SeedClient inserts a client owned by businessID
func SeedClient(t testing.TB, db *gorm.DB, businessID uuid.UUID, name string) *models.Client {
	t.Helper()

	c := &models.Client{BusinessID: businessID, Name: name}
	require.NoError(t, db.Create(c).Error)
	return c
}

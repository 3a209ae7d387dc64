// Package testutil provides a migrated SQLite store and fixtures for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"trovr-backend/internal/database"
	"trovr-backend/internal/models"
)

// TestJWTSecret signs tokens in handler and websocket tests.
const TestJWTSecret = "test-secret"

// SetupTestDB opens a fresh file-backed SQLite database with the full schema.
// The database is closed when the test ends.
func SetupTestDB(t *testing.T) *database.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trovr.db")
	db, err := database.Connect(database.DriverSQLite, "file:"+path)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db), "failed to migrate test database")
	return database.NewStore(db)
}

// CreateTestUser inserts a user with a zero balance.
func CreateTestUser(t *testing.T, store *database.Store, name string) *models.User {
	t.Helper()

	now := time.Now().Unix()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     name + "@example.com",
		Password:  "not-a-hash",
		Name:      name,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

// CreateTestAdmin inserts a user with the admin role.
func CreateTestAdmin(t *testing.T, store *database.Store) *models.User {
	t.Helper()

	now := time.Now().Unix()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     "admin-" + uuid.NewString()[:8] + "@example.com",
		Password:  "not-a-hash",
		Name:      "Admin",
		Role:      models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

// CreateOnlineBin registers a bin through a heartbeat at the given time, so
// it is online and available with qr_code == id.
func CreateOnlineBin(t *testing.T, store *database.Store, binID string, at time.Time) {
	t.Helper()
	require.NoError(t, store.RecordHeartbeat(context.Background(), binID, at.Unix()))
}

// CreateTestContainer adds a catalog entry worth valueCents.
func CreateTestContainer(t *testing.T, store *database.Store, barcode string, valueCents int64) *models.Container {
	t.Helper()

	c := &models.Container{
		ID:         uuid.New().String(),
		Barcode:    barcode,
		Label:      "Test container " + barcode,
		ValueCents: valueCents,
	}
	require.NoError(t, store.UpsertContainer(context.Background(), c))
	return c
}

// GetBin reads a bin and fails the test if it is missing.
func GetBin(t *testing.T, store *database.Store, binID string) *models.Bin {
	t.Helper()
	bin, err := store.GetBin(context.Background(), binID)
	require.NoError(t, err)
	return bin
}

// GetUser reads a user and fails the test if it is missing.
func GetUser(t *testing.T, store *database.Store, userID string) *models.User {
	t.Helper()
	user, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return user
}

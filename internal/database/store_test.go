package database_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trovr-backend/internal/apperr"
	"trovr-backend/internal/database"
	"trovr-backend/internal/models"
	"trovr-backend/internal/testutil"
)

func TestMigrateIsIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	require.NoError(t, database.Migrate(store.DB()))
}

func TestRecordHeartbeat(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	require.NoError(t, store.RecordHeartbeat(ctx, "B1", 100))

	bin := testutil.GetBin(t, store, "B1")
	assert.True(t, bin.Online)
	assert.True(t, bin.Available)
	assert.Equal(t, "B1", bin.QRCode)
	require.NotNil(t, bin.LastHeartbeat)
	assert.EqualValues(t, 100, *bin.LastHeartbeat)

	t.Run("does not touch available", func(t *testing.T) {
		require.NoError(t, store.SetBinAvailable(ctx, "B1", false, 110))
		require.NoError(t, store.RecordHeartbeat(ctx, "B1", 120))

		bin := testutil.GetBin(t, store, "B1")
		assert.True(t, bin.Online)
		assert.False(t, bin.Available)
		assert.EqualValues(t, 120, *bin.LastHeartbeat)
	})
}

func TestGetBinNotFound(t *testing.T) {
	store := testutil.SetupTestDB(t)

	_, err := store.GetBin(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = store.GetBinByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = store.SetBinOnline(context.Background(), "nope", true, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDemoteIfStale(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	require.NoError(t, store.RecordHeartbeat(ctx, "B1", 100))

	// last_heartbeat == cutoff is not stale
	demoted, err := store.DemoteIfStale(ctx, "B1", 100, 400)
	require.NoError(t, err)
	assert.False(t, demoted)

	demoted, err = store.DemoteIfStale(ctx, "B1", 101, 401)
	require.NoError(t, err)
	assert.True(t, demoted)

	bin := testutil.GetBin(t, store, "B1")
	assert.False(t, bin.Online)
	assert.False(t, bin.Available)

	// already offline
	demoted, err = store.DemoteIfStale(ctx, "B1", 1000, 1000)
	require.NoError(t, err)
	assert.False(t, demoted)
}

func TestApplyClaimAndClose(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, store, "alice")
	testutil.CreateOnlineBin(t, store, "B1", time.Unix(100, 0))

	sess := models.Session{ID: uuid.NewString(), UserID: user.ID, BinID: "B1", StartedAt: 110}
	require.NoError(t, store.ApplyClaim(ctx, database.ClaimTransition{Open: sess}))

	assert.False(t, testutil.GetBin(t, store, "B1").Available)
	u := testutil.GetUser(t, store, user.ID)
	require.NotNil(t, u.LastSessionStart)
	assert.EqualValues(t, 110, *u.LastSessionStart)

	open, err := store.OpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, sess.ID, open[0].ID)

	err = store.CloseSession(ctx, database.SessionClose{
		SessionID: sess.ID, UserID: user.ID, BinID: "B1", Reason: models.SessionReleased, FreeBin: true,
	}, 120)
	require.NoError(t, err)

	assert.True(t, testutil.GetBin(t, store, "B1").Available)
	u = testutil.GetUser(t, store, user.ID)
	require.NotNil(t, u.LastSessionEnd)
	assert.EqualValues(t, 120, *u.LastSessionEnd)

	closed, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.EndReason)
	assert.Equal(t, models.SessionReleased, *closed.EndReason)

	open, err = store.OpenSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestApplyClaimOfflineBin(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, store, "alice")
	testutil.CreateOnlineBin(t, store, "B1", time.Unix(100, 0))
	require.NoError(t, store.SetBinOnline(ctx, "B1", false, 101))

	err := store.ApplyClaim(ctx, database.ClaimTransition{
		Open: models.Session{ID: uuid.NewString(), UserID: user.ID, BinID: "B1", StartedAt: 110},
	})
	assert.ErrorIs(t, err, apperr.ErrBinUnavailable)

	open, err := store.OpenSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestApplyClaimUnknownUserRollsBack(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.CreateOnlineBin(t, store, "B1", time.Unix(100, 0))

	err := store.ApplyClaim(ctx, database.ClaimTransition{
		Open: models.Session{ID: uuid.NewString(), UserID: "ghost", BinID: "B1", StartedAt: 110},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.True(t, testutil.GetBin(t, store, "B1").Available, "bin reservation must roll back")
}

func TestCloseSessionKeepsOfflineBinUnavailable(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, store, "alice")
	testutil.CreateOnlineBin(t, store, "B1", time.Unix(100, 0))

	sess := models.Session{ID: uuid.NewString(), UserID: user.ID, BinID: "B1", StartedAt: 110}
	require.NoError(t, store.ApplyClaim(ctx, database.ClaimTransition{Open: sess}))

	demoted, err := store.DemoteIfStale(ctx, "B1", 500, 500)
	require.NoError(t, err)
	require.True(t, demoted)

	require.NoError(t, store.CloseSession(ctx, database.SessionClose{
		SessionID: sess.ID, UserID: user.ID, BinID: "B1", Reason: models.SessionReleased, FreeBin: true,
	}, 510))

	bin := testutil.GetBin(t, store, "B1")
	assert.False(t, bin.Online)
	assert.False(t, bin.Available)
}

func TestCreditScan(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, store, "alice")
	container := testutil.CreateTestContainer(t, store, "X", 10)

	entry := &models.LedgerEntry{
		UserID:        &user.ID,
		ContainerID:   &container.ID,
		Barcode:       "X",
		Accepted:      true,
		CreditedCents: 10,
		Reason:        models.LedgerCredited,
		RecordedAt:    200,
	}
	require.NoError(t, store.CreditScan(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	u := testutil.GetUser(t, store, user.ID)
	assert.EqualValues(t, 10, u.BalanceCents)
	assert.Equal(t, 1, u.RecycledCount)

	rows, err := store.LedgerForUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Accepted)
	assert.EqualValues(t, 10, rows[0].CreditedCents)
}

func TestCreditScanUnknownUserWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	ghost := "ghost"

	err := store.CreditScan(ctx, &models.LedgerEntry{
		UserID: &ghost, Barcode: "X", Accepted: true, CreditedCents: 10, Reason: models.LedgerCredited, RecordedAt: 1,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	var count int
	require.NoError(t, store.DB().Get(&count, `SELECT COUNT(*) FROM recycled_containers`))
	assert.Zero(t, count)
}

func TestFCMTokens(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	alice := testutil.CreateTestUser(t, store, "alice")
	bob := testutil.CreateTestUser(t, store, "bob")

	require.NoError(t, store.SaveFCMToken(ctx, models.FCMToken{Token: "t1", UserID: alice.ID, DeviceType: "ios", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, store.SaveFCMToken(ctx, models.FCMToken{Token: "t2", UserID: alice.ID, DeviceType: "android", CreatedAt: 2, UpdatedAt: 2}))

	tokens, err := store.FCMTokensForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, tokens)

	// a token moves with the device
	require.NoError(t, store.SaveFCMToken(ctx, models.FCMToken{Token: "t1", UserID: bob.ID, DeviceType: "ios", CreatedAt: 3, UpdatedAt: 3}))
	tokens, err = store.FCMTokensForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, tokens)
}

func TestSeedCatalogAndBins(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	catalog := strings.NewReader(`# barcode,value,label,weight
5449000000996,0.10,Cola 330ml,14.5
4006381333931,0.25

7622210449283
`)
	n, err := database.SeedCatalog(ctx, store, catalog)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	c, err := store.LookupByBarcode(ctx, "5449000000996")
	require.NoError(t, err)
	assert.EqualValues(t, 10, c.ValueCents)
	assert.Equal(t, "Cola 330ml", c.Label)
	require.NotNil(t, c.WeightGrams)
	assert.InDelta(t, 14.5, *c.WeightGrams, 0.001)

	c, err = store.LookupByBarcode(ctx, "4006381333931")
	require.NoError(t, err)
	assert.EqualValues(t, 25, c.ValueCents)

	_, err = store.LookupByBarcode(ctx, "000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err = database.SeedBins(ctx, store, strings.NewReader("B1\nB2,QR-B2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bin, err := store.GetBinByCode(ctx, "QR-B2")
	require.NoError(t, err)
	assert.Equal(t, "B2", bin.ID)
	assert.False(t, bin.Online)
	assert.True(t, bin.Available)

	// reseeding keeps existing bins
	n, err = database.SeedBins(ctx, store, strings.NewReader("B1\n"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedCatalogRejectsBadValue(t *testing.T) {
	store := testutil.SetupTestDB(t)
	_, err := database.SeedCatalog(context.Background(), store, strings.NewReader("123,abc\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	require.NoError(t, database.SeedAdmin(ctx, store, "admin@example.com", "secret"))
	require.NoError(t, database.SeedAdmin(ctx, store, "admin@example.com", "secret"))

	admin, err := store.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NotEqual(t, "secret", admin.Password)
}

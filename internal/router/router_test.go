package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trovr-backend/internal/config"
	"trovr-backend/internal/database"
	"trovr-backend/internal/liveness"
	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/scan"
	"trovr-backend/internal/session"
	"trovr-backend/internal/testutil"
	"trovr-backend/internal/websocket"
)

const testBinKey = "bin-key"

type testServer struct {
	handler http.Handler
	store   *database.Store
	clock   *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.SetupTestDB(t)
	clk := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	reg := registry.New(store, clk)
	table := session.New(store, reg, clk, config.ClaimPolicyReject, nil)

	return &testServer{
		handler: New(Deps{
			Store:     store,
			Registry:  reg,
			Sessions:  table,
			Processor: scan.New(store, table, reg, clk, false),
			Monitor:   liveness.New(reg, clk, 5*time.Minute, time.Minute, nil),
			Hub:       websocket.NewHub(),
			JWTSecret: testutil.TestJWTSecret,
			BinAPIKey: testBinKey,
		}),
		store: store,
		clock: clk,
	}
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := middleware.IssueToken(testutil.TestJWTSecret, middleware.UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, time.Now())
	require.NoError(t, err)
	return token
}

type call struct {
	method string
	path   string
	body   interface{}
	token  string
	binKey string
}

func (s *testServer) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.binKey != "" {
		req.Header.Set(middleware.BinKeyHeader, c.binKey)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trovr_")
}

func TestSignupLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	signup := map[string]string{"email": "Alice@Example.com", "password": "correct-horse", "name": "Alice"}

	rec, body := s.do(t, call{method: http.MethodPost, path: "/api/auth/signup", body: signup})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["token"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/auth/signup", body: signup})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "alice@example.com", "password": "wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["ok"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"email": "alice@example.com", "password": "correct-horse"}})
	require.Equal(t, http.StatusOK, rec.Code)
	token := body["token"].(string)

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/users/me", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, float64(0), user["balance"])
	assert.Nil(t, body["session"])
}

func TestSignupValidation(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"email": "bob@example.com", "password": "short", "name": "Bob"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/auth/signup",
		body: map[string]string{"email": "", "password": "long-enough", "name": "Bob"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBinEndpointsRequireKey(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/heartbeat"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/heartbeat", binKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/heartbeat", binKey: testBinKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecyclingFlow(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	testutil.CreateTestContainer(t, s.store, "X", 25)
	token := tokenFor(t, alice)

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/heartbeat", binKey: testBinKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(t, call{method: http.MethodGet, path: "/api/bins/B1", binKey: testBinKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["online"])
	assert.Equal(t, true, body["available"])
	assert.Equal(t, false, body["in_session"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "B1"}, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["bin_online"])
	assert.Equal(t, false, body["bin_available"])

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/bins/B1/session", binKey: testBinKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["user"].(map[string]interface{})["name"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/scans",
		body: models.ScanRequest{Barcode: "X"}, binKey: testBinKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["credited"])
	assert.Equal(t, 0.25, body["amount"])

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/sessions/current/containers", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["containers"], 1)
	assert.Equal(t, 0.25, body["total"])

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/users/me", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.25, body["user"].(map[string]interface{})["balance"])
	assert.NotNil(t, body["session"])

	rec, body = s.do(t, call{method: http.MethodDelete, path: "/api/sessions/current", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["released"])

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/sessions/current", token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, call{method: http.MethodDelete, path: "/api/sessions/current", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["released"])

	assert.True(t, testutil.GetBin(t, s.store, "B1").Available)
}

func TestClaimRefusalsReportBinFlags(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	token := tokenFor(t, alice)

	rec, body := s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "nope"}, token: token})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, false, body["bin_online"])

	testutil.CreateOnlineBin(t, s.store, "B1", s.clock.Now())
	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/availability",
		body: map[string]bool{"value": false}, binKey: testBinKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "B1"}, token: token})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, true, body["bin_online"])
	assert.Equal(t, false, body["bin_available"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/sessions", token: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAvailabilityOnHeldBinConflicts(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	testutil.CreateOnlineBin(t, s.store, "B1", s.clock.Now())

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "B1"}, token: tokenFor(t, alice)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/availability",
		body: map[string]bool{"value": true}, binKey: testBinKey})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/availability",
		body: map[string]string{}, binKey: testBinKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanErrors(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateOnlineBin(t, s.store, "B1", s.clock.Now())

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/scans",
		body: models.ScanRequest{Barcode: "missing"}, binKey: testBinKey})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B9/scans",
		body: models.ScanRequest{Barcode: "missing"}, binKey: testBinKey})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/scans",
		body: models.ScanRequest{Barcode: "  "}, binKey: testBinKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyContainerAndReject(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	testutil.CreateTestContainer(t, s.store, "X", 10)

	rec, body := s.do(t, call{method: http.MethodGet, path: "/api/containers/X"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.1, body["container"].(map[string]interface{})["value"])

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/containers/nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = s.do(t, call{method: http.MethodPost, path: "/api/scans/reject",
		body: models.RejectScanRequest{Barcode: "X"}, token: tokenFor(t, alice)})
	require.Equal(t, http.StatusOK, rec.Code)
	entry := body["entry"].(map[string]interface{})
	assert.Equal(t, models.LedgerRejected, entry["reason"])
	assert.Equal(t, false, entry["accepted"])

	assert.EqualValues(t, 0, testutil.GetUser(t, s.store, alice.ID).BalanceCents)
}

func TestRegisterFCMToken(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	token := tokenFor(t, alice)

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/api/users/me/fcm-token",
		body: models.RegisterFCMTokenRequest{Token: "device-1", DeviceType: "ios"}, token: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/users/me/fcm-token",
		body: models.RegisterFCMTokenRequest{Token: "device-2", DeviceType: "toaster"}, token: token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tokens, err := s.store.FCMTokensForUser(t.Context(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, tokens)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := testutil.CreateTestAdmin(t, s.store)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	adminToken := tokenFor(t, admin)

	testutil.CreateOnlineBin(t, s.store, "B1", s.clock.Now())
	testutil.CreateOnlineBin(t, s.store, "B2", s.clock.Now())

	rec, _ := s.do(t, call{method: http.MethodGet, path: "/api/admin/bins", token: tokenFor(t, alice)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "B1"}, token: tokenFor(t, alice)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/bins", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var bins []models.BinResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bins))
	require.Len(t, bins, 2)
	assert.True(t, bins[0].InSession)
	assert.False(t, bins[1].InSession)

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/sessions", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []models.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, alice.ID, sessions[0].UserID)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/admin/bins/B2/online",
		body: map[string]bool{"value": false}, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, testutil.GetBin(t, s.store, "B2").Online)

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/admin/bins/B9/online",
		body: map[string]bool{"value": true}, token: adminToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.clock.Advance(5*time.Minute + time.Second)
	rec, body := s.do(t, call{method: http.MethodPost, path: "/api/admin/liveness/sweep", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(1), result["demoted"])

	bin := testutil.GetBin(t, s.store, "B1")
	assert.False(t, bin.Online)
	assert.False(t, bin.Available)
}

func TestUserHistoryAndAdminLookups(t *testing.T) {
	s := newTestServer(t)
	admin := testutil.CreateTestAdmin(t, s.store)
	alice := testutil.CreateTestUser(t, s.store, "alice")
	adminToken := tokenFor(t, admin)
	token := tokenFor(t, alice)
	testutil.CreateTestContainer(t, s.store, "X", 25)
	testutil.CreateOnlineBin(t, s.store, "B1", s.clock.Now())

	rec, body := s.do(t, call{method: http.MethodGet, path: "/api/users/me/containers", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["containers"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/sessions",
		body: models.ClaimSessionRequest{QRCode: "B1"}, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	for range 2 {
		rec, _ = s.do(t, call{method: http.MethodPost, path: "/api/bins/B1/scans",
			body: models.ScanRequest{Barcode: "X"}, binKey: testBinKey})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/admin/stats", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["open_sessions"])
	assert.Equal(t, float64(0), body["websocket_clients"])

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/sessions", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []models.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	rec, _ = s.do(t, call{method: http.MethodDelete, path: "/api/sessions/current", token: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/admin/sessions/" + sessionID, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.ID, body["user_id"])
	assert.Equal(t, "B1", body["bin_id"])

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/sessions/missing", token: adminToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/stats", token: token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/users/me/containers?limit=1", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	containers := body["containers"].([]interface{})
	require.Len(t, containers, 1)
	assert.Equal(t, models.LedgerCredited, containers[0].(map[string]interface{})["reason"])

	rec, body = s.do(t, call{method: http.MethodGet, path: "/api/users/me/containers", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["containers"], 2)
}

package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vestlabs/vest/vestd/pkg/server"
	"github.com/vestlabs/vest/vestd/pkg/vesting"
)

const testAdminToken = "test-admin-token"

type testServer struct {
	handler http.Handler
	clock   *clockwork.FakeClock
	ledger  *vesting.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	ledger := vesting.NewMemoryLedger()
	ledger.Credit("admin", 1_000_000)

	svc, err := vesting.New(vesting.Config{
		Logger:          slog.New(slog.DiscardHandler),
		Clock:           clock,
		Store:           vesting.NewMemoryStore(),
		Token:           ledger,
		Administrator:   "admin",
		RecoveryAccount: "recovery",
	})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		Logger:      slog.New(slog.DiscardHandler),
		Service:     svc,
		ListenAddr:  "127.0.0.1:0",
		AdminToken:  testAdminToken,
		VersionInfo: server.VersionInfo{Version: "test", Commit: "none", Date: "unknown"},
		ClaimBurst:  1000,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testServer{handler: srv.Handler(), clock: clock, ledger: ledger}
}

// do performs a request against the in-process handler. A non-nil body is
// JSON-encoded; admin marks the request with the configured bearer token.
func (ts *testServer) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.RemoteAddr = "10.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (ts *testServer) createSchedule(t *testing.T, req server.CreateScheduleRequest) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/schedules", req, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestVest_Server_AdminAuth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("missing token is unauthorized", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/schedules", server.CreateScheduleRequest{}, false)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/schedules", bytes.NewReader([]byte("{}")))
		req.Header.Set("Authorization", "Bearer not-the-token")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("beneficiary routes need no token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/beneficiaries/alice/claimable", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestVest_Server_CreateSchedule(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("created", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/schedules", server.CreateScheduleRequest{
			Beneficiary:    "alice",
			Total:          1000,
			UpfrontPercent: 10,
			CliffTime:      100,
			RampEnd:        1100,
		}, true)
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[server.CreateScheduleResponse](t, rec)
		require.Equal(t, "alice", resp.Beneficiary)
		require.Equal(t, 0, resp.Index)
	})

	t.Run("validation error is 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/schedules", server.CreateScheduleRequest{
			Beneficiary:    "alice",
			Total:          0,
			UpfrontPercent: 10,
			CliffTime:      100,
			RampEnd:        1100,
		}, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "InvalidAmount")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/schedules", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVest_Server_CreateBatch(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("length mismatch is 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/schedules/batch", server.CreateBatchRequest{
			Beneficiaries:   []string{"alice", "bob"},
			Totals:          []uint64{100},
			UpfrontPercents: []uint64{10, 10},
			CliffTimes:      []uint64{100, 100},
			RampEnds:        []uint64{1100, 1100},
		}, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "LengthMismatch")
	})

	t.Run("created", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/schedules/batch", server.CreateBatchRequest{
			Beneficiaries:   []string{"carol", "dave"},
			Totals:          []uint64{100, 200},
			UpfrontPercents: []uint64{10, 0},
			CliffTimes:      []uint64{100, 100},
			RampEnds:        []uint64{1100, 1100},
		}, true)
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[server.CreateBatchResponse](t, rec)
		require.Equal(t, []int{0, 0}, resp.Indexes)
	})
}

func TestVest_Server_BeneficiaryRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.createSchedule(t, server.CreateScheduleRequest{
		Beneficiary: "alice", Total: 1000, UpfrontPercent: 10, CliffTime: 100, RampEnd: 1100,
	})

	t.Run("list schedules", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/beneficiaries/alice/schedules", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[server.SchedulesResponse](t, rec)
		require.Len(t, resp.Schedules, 1)
		require.Equal(t, uint64(1000), resp.Schedules[0].Total)
	})

	t.Run("unknown beneficiary lists empty", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/beneficiaries/nobody/schedules", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[server.SchedulesResponse](t, rec)
		require.Empty(t, resp.Schedules)
	})

	t.Run("claimable before the cliff is the upfront", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/beneficiaries/alice/claimable", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[server.ClaimableResponse](t, rec)
		require.Equal(t, uint64(100), resp.Claimable)
	})
}

func TestVest_Server_Claim(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.createSchedule(t, server.CreateScheduleRequest{
		Beneficiary: "alice", Total: 1000, UpfrontPercent: 10, CliffTime: 100, RampEnd: 1100,
	})
	ts.clock.Advance(600 * time.Second)

	t.Run("paid", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/claim", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[server.ClaimResponse](t, rec)
		require.Equal(t, uint64(550), resp.Paid)
		require.Equal(t, uint64(550), ts.ledger.Balance("alice"))
	})

	t.Run("nothing left is 409", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/claim", nil, false)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Contains(t, rec.Body.String(), "NothingToClaim")
	})

	t.Run("no schedules is 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/nobody/claim", nil, false)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestVest_Server_ClaimRateLimit(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	svc, err := vesting.New(vesting.Config{
		Logger:          slog.New(slog.DiscardHandler),
		Clock:           clock,
		Store:           vesting.NewMemoryStore(),
		Token:           vesting.NewMemoryLedger(),
		Administrator:   "admin",
		RecoveryAccount: "recovery",
	})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		Logger:             slog.New(slog.DiscardHandler),
		Service:            svc,
		ListenAddr:         "127.0.0.1:0",
		AdminToken:         testAdminToken,
		ClaimRatePerMinute: 1,
		ClaimBurst:         2,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/beneficiaries/alice/claim", nil)
		req.RemoteAddr = "10.0.0.9:40000"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			require.NotEmpty(t, rec.Header().Get("Retry-After"))
			limited = true
			break
		}
	}
	require.True(t, limited, "burst exhaustion must return 429")
}

func TestVest_Server_RateLimiterStop(t *testing.T) {
	t.Parallel()

	rl := server.NewRateLimiter(1, 1)
	allowed, _ := rl.Allow("10.0.0.1")
	require.True(t, allowed)

	// Stop is idempotent and ends the cleanup goroutine.
	rl.Stop()
	rl.Stop()

	// The limiter itself keeps working after Stop.
	allowed, _ = rl.Allow("10.0.0.2")
	require.True(t, allowed)
}

func TestVest_Server_Recover(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.createSchedule(t, server.CreateScheduleRequest{
		Beneficiary: "alice", Total: 500, UpfrontPercent: 40, CliffTime: 100, RampEnd: 1100,
	})
	ts.createSchedule(t, server.CreateScheduleRequest{
		Beneficiary: "alice", Total: 300, UpfrontPercent: 0, CliffTime: 100, RampEnd: 1100,
	})

	rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/claim", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(200), decode[server.ClaimResponse](t, rec).Paid)

	t.Run("requires admin", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/recover", nil, false)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("sweeps the unclaimed remainder", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/recover", nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, uint64(600), decode[server.RecoverResponse](t, rec).Recovered)
		require.Equal(t, uint64(600), ts.ledger.Balance("recovery"))
	})

	t.Run("repeat recovery is 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/beneficiaries/alice/recover", nil, true)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestVest_Server_ConfigRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("empty account is 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/api/config/recovery-account", server.SetAccountRequest{}, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "InvalidAccount")
	})

	for _, path := range []string{"/api/config/recovery-account", "/api/config/administrator"} {
		t.Run(fmt.Sprintf("updates %s", path), func(t *testing.T) {
			rec := ts.do(t, http.MethodPut, path, server.SetAccountRequest{Account: "next"}, true)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, "next", decode[server.SetAccountRequest](t, rec).Account)
		})
	}
}

func TestVest_Server_Probes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := ts.do(t, http.MethodGet, path, nil, false)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := ts.do(t, http.MethodGet, "/version", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[server.VersionInfo](t, rec).Version)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "vestd_")
}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/onenesskingdom/oneness-ledger/internal/campaigns"
	"github.com/onenesskingdom/oneness-ledger/internal/exchange"
	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/posts"
	"github.com/onenesskingdom/oneness-ledger/internal/profiles"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/auth"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	dbpkg "github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/dbtest"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/rates"
)

var fixedNow = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

type memoryRedis struct {
	mu      sync.Mutex
	values  map[string]string
	windows map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, windows: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[scope]++
	return m.windows[scope] <= limit, m.windows[scope], nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type harness struct {
	t       *testing.T
	db      *gorm.DB
	cfg     *config.Config
	handler http.Handler
	entries ledger.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.Nop()
	clock := func() time.Time { return fixedNow }

	cfg := &config.Config{
		App: config.AppConfig{Env: "test", WriteRateLimit: 1000, WriteRateWindow: time.Minute},
		JWT: config.JWTConfig{
			Secret:            "router-secret",
			Issuer:            "https://auth.example.com/auth/v1",
			Audience:          "authenticated",
			ExpirationMinutes: 10,
		},
	}

	runner := dbpkg.NewFromGorm(conn)
	entries := ledger.NewRepository(conn)
	txns := transactions.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:           runner,
		Repository:   entries,
		Transactions: txns,
		Outbox:       emitter,
		Logger:       logg,
		Now:          clock,
	})
	require.NoError(t, err)
	profileSvc, err := profiles.NewService(profiles.ServiceParams{
		DB:             runner,
		Repository:     profiles.NewRepository(conn),
		Ledger:         ledgerSvc,
		Transactions:   txns,
		Outbox:         emitter,
		Logger:         logg,
		WelcomeBonusOP: 100,
		Now:            clock,
	})
	require.NoError(t, err)
	txnSvc, err := transactions.NewService(txns)
	require.NoError(t, err)
	postSvc, err := posts.NewService(posts.NewRepository(conn), ledgerSvc)
	require.NoError(t, err)
	campaignSvc, err := campaigns.NewService(campaigns.NewRepository(conn), entries, ledgerSvc)
	require.NoError(t, err)
	provider, err := rates.NewStaticProvider(map[string]string{"JPY": "1", "USDT": "0.0067"})
	require.NoError(t, err)
	exchangeSvc, err := exchange.NewService(exchange.ServiceParams{
		DB:           runner,
		Ledger:       entries,
		Transactions: txns,
		Outbox:       emitter,
		Rates:        provider,
		Logger:       logg,
		Policy:       exchange.NewPolicy(5, 95),
		Now:          clock,
	})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       runner,
		Redis:    newMemoryRedis(),
		Now:      clock,
		Profiles: profileSvc,
		Ledger:   ledgerSvc,
		Txns:     txnSvc,
		Posts:    postSvc,
		Campaign: campaignSvc,
		Exchange: exchangeSvc,
	})
	return &harness{t: t, db: conn, cfg: cfg, handler: handler, entries: entries}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (h *harness) token(userID uuid.UUID, appRole string) string {
	h.t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID:  userID.String(),
		Role:    "authenticated",
		AppRole: appRole,
	})
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path string, userID uuid.UUID, appRole string, body any) (int, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+h.token(userID, appRole))
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)

	var env envelope
	if resp.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	}
	return resp.Code, env
}

func (h *harness) onboard(name string) uuid.UUID {
	h.t.Helper()
	id := uuid.New()
	status, env := h.do(http.MethodPost, "/api/v1/profile", id, "", map[string]any{"username": name})
	require.Equal(h.t, http.StatusCreated, status, env.Error.Message)
	return id
}

func (h *harness) balance(userID uuid.UUID) int64 {
	h.t.Helper()
	status, env := h.do(http.MethodGet, "/api/v1/profile", userID, "", nil)
	require.Equal(h.t, http.StatusOK, status, env.Error.Message)
	var summary struct {
		Points ledger.Limits `json:"points"`
	}
	require.NoError(h.t, json.Unmarshal(env.Data, &summary))
	return summary.Points.Balance
}

func (h *harness) post(author uuid.UUID) uuid.UUID {
	h.t.Helper()
	id := uuid.New()
	require.NoError(h.t, h.db.Create(&models.Post{ID: id, AuthorID: author, Body: "hello", CreatedAt: fixedNow}).Error)
	return id
}

func (h *harness) tip(sender, postID uuid.UUID, amount int64) (int, envelope) {
	return h.do(http.MethodPost, "/api/v1/posts/"+postID.String()+"/tip", sender, "", map[string]any{"amount": amount})
}

func (h *harness) entryCount() int64 {
	var n int64
	require.NoError(h.t, h.db.Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		h.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(http.MethodGet, "/api/v1/ledger", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestOnboardingGrantsWelcomeBonus(t *testing.T) {
	h := newHarness(t)
	user := h.onboard("alice")
	assert.Equal(t, int64(100), h.balance(user))

	status, env := h.do(http.MethodGet, "/api/v1/ledger", user, "", nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items []struct {
			Amount int64  `json:"amount"`
			Type   string `json:"type"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(100), page.Items[0].Amount)
	assert.Equal(t, "welcome_bonus", page.Items[0].Type)
}

func TestOnboardingKeepsMultibyteNamesIntact(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	displayName := strings.Repeat("あ", 64)
	bio := strings.Repeat("光", 300)

	status, env := h.do(http.MethodPost, "/api/v1/profile", id, "", map[string]any{
		"username":     "hikari",
		"display_name": displayName,
	})
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	var stored models.Profile
	require.NoError(t, h.db.First(&stored, "id = ?", id).Error)
	assert.True(t, utf8.ValidString(stored.DisplayName))
	assert.Equal(t, displayName, stored.DisplayName)

	status, env = h.do(http.MethodPost, "/api/v1/profile", uuid.New(), "", map[string]any{
		"username": "tsuki",
		"bio":      bio,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestNonIntegerAmountsAreInvalidAmount(t *testing.T) {
	h := newHarness(t)
	sender := h.onboard("sender")
	author := h.onboard("author")
	postID := h.post(author)
	before := h.entryCount()

	cases := []struct {
		name   string
		path   string
		body   map[string]any
		field  string
		reason string
	}{
		{"fractional tip", "/api/v1/posts/" + postID.String() + "/tip", map[string]any{"amount": 30.5}, "amount", "not_a_whole_number"},
		{"text tip", "/api/v1/posts/" + postID.String() + "/tip", map[string]any{"amount": "abc"}, "amount", "not_a_number"},
		{"text exchange", "/api/v1/exchange", map[string]any{"op_amount": "abc", "currency": "JPY"}, "op_amount", "not_a_number"},
		{"fractional preview", "/api/v1/exchange/preview", map[string]any{"op_amount": 1.5, "currency": "JPY"}, "op_amount", "not_a_whole_number"},
	}
	for _, tc := range cases {
		status, env := h.do(http.MethodPost, tc.path, sender, "", tc.body)
		assert.Equal(t, http.StatusBadRequest, status, tc.name)
		assert.Equal(t, "INVALID_AMOUNT", env.Error.Code, tc.name)
		assert.Equal(t, tc.field, env.Error.Details["field"], tc.name)
		assert.Equal(t, tc.reason, env.Error.Details["reason"], tc.name)
	}
	assert.Equal(t, before, h.entryCount())
	assert.Equal(t, int64(100), h.balance(sender))
}

func TestTipMovesPointsBetweenMembers(t *testing.T) {
	h := newHarness(t)
	sender := h.onboard("sender")
	author := h.onboard("author")
	postID := h.post(author)

	status, env := h.tip(sender, postID, 30)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var body struct {
		Success     bool      `json:"success"`
		Amount      int64     `json:"amount"`
		RecipientID uuid.UUID `json:"recipientId"`
		Balance     int64     `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(30), body.Amount)
	assert.Equal(t, author, body.RecipientID)
	assert.Equal(t, int64(70), body.Balance)

	assert.Equal(t, int64(70), h.balance(sender))
	assert.Equal(t, int64(130), h.balance(author))
}

func TestTipBeyondBalanceIsRejected(t *testing.T) {
	h := newHarness(t)
	sender := h.onboard("sender")
	author := h.onboard("author")
	postID := h.post(author)

	status, _ := h.tip(sender, postID, 50)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(50), h.balance(sender))

	status, env := h.tip(sender, postID, 60)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", env.Error.Code)
	assert.Equal(t, int64(50), h.balance(sender))
}

func TestSelfTipIsRejected(t *testing.T) {
	h := newHarness(t)
	author := h.onboard("author")
	postID := h.post(author)
	before := h.entryCount()

	status, env := h.tip(author, postID, 10)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, before, h.entryCount())
}

func TestConcurrentTipsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	sender := h.onboard("sender")
	author := h.onboard("author")
	postID := h.post(author)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], _ = h.tip(sender, postID, 80)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, code)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(20), h.balance(sender))
}

func TestDonationToUnknownCampaignHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	donor := h.onboard("donor")
	before := h.entryCount()

	status, env := h.do(http.MethodPost, "/api/v1/campaigns", donor, "", map[string]any{
		"campaignId": uuid.NewString(),
		"amount":     25,
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RECIPIENT_NOT_FOUND", env.Error.Code)
	assert.Equal(t, before, h.entryCount())
	assert.Equal(t, int64(100), h.balance(donor))
}

func TestDonationCreditsCampaignOwner(t *testing.T) {
	h := newHarness(t)
	donor := h.onboard("donor")
	owner := h.onboard("owner")
	campaignID := uuid.New()
	require.NoError(t, h.db.Create(&models.Campaign{ID: campaignID, OwnerID: owner, Title: "well", Active: true, CreatedAt: fixedNow}).Error)

	status, env := h.do(http.MethodPost, "/api/v1/campaigns", donor, "", map[string]any{
		"campaignId": campaignID.String(),
		"amount":     25,
	})
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	assert.Equal(t, int64(75), h.balance(donor))
	assert.Equal(t, int64(125), h.balance(owner))
}

func TestExchangeBlockedWhenMonthlyLimitUsed(t *testing.T) {
	h := newHarness(t)
	user := h.onboard("redeemer")
	correlation := uuid.New()
	require.NoError(t, h.entries.Insert(context.Background(),
		models.LedgerEntry{UserID: user, Amount: 500, Type: enums.LedgerEntryTipReceived, CorrelationID: uuid.New(), CreatedAt: fixedNow.Add(-2 * time.Hour)},
		models.LedgerEntry{UserID: user, Amount: -200, Type: enums.LedgerEntryExchange, CorrelationID: correlation, CreatedAt: fixedNow.Add(-time.Hour)},
	))
	require.Equal(t, int64(400), h.balance(user))

	status, env := h.do(http.MethodPost, "/api/v1/exchange", user, "", map[string]any{
		"op_amount": 1,
		"currency":  "JPY",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MONTHLY_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, int64(400), h.balance(user))
}

func TestExchangeRejectionRestoresBalance(t *testing.T) {
	h := newHarness(t)
	user := h.onboard("redeemer")
	admin := uuid.New()

	status, env := h.do(http.MethodPost, "/api/v1/exchange", user, "", map[string]any{
		"op_amount": 30,
		"currency":  "jpy",
	})
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var created exchange.Request
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, enums.ExchangeStatusPending, created.Status)
	assert.Equal(t, "29", created.PayoutAmount)
	assert.Equal(t, int64(70), h.balance(user))

	path := "/api/admin/v1/exchange/" + created.ID.String() + "/transition"
	status, _ = h.do(http.MethodPost, path, user, "", map[string]any{"status": "rejected"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = h.do(http.MethodPost, path, admin, "admin", map[string]any{"status": "rejected", "reason": "address unverified"})
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	assert.Equal(t, int64(100), h.balance(user))

	status, env = h.do(http.MethodPost, path, admin, "admin", map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "STATE_CONFLICT", env.Error.Code)
}

func TestExchangeAboveCeilingIsRejected(t *testing.T) {
	h := newHarness(t)
	user := h.onboard("redeemer")

	status, env := h.do(http.MethodPost, "/api/v1/exchange/preview", user, "", map[string]any{
		"op_amount": 20,
		"currency":  "USDT",
	})
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var preview exchange.Preview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, int64(95), preview.MaxExchangeableOP)
	assert.Equal(t, int64(1), preview.FeeOP)
	assert.Equal(t, "0.13", preview.PayoutAmount)

	status, env = h.do(http.MethodPost, "/api/v1/exchange", user, "", map[string]any{
		"op_amount": 96,
		"currency":  "USDT",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", env.Error.Code)
	assert.Equal(t, int64(100), h.balance(user))
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairelay/internal/client"
	"pairelay/internal/config"
	"pairelay/internal/model"
	"pairelay/internal/repository"
	"pairelay/internal/resolver"
	"pairelay/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testAPIKey = "test-key"

type fakeDeliverer struct {
	outcome client.Outcome
}

func (f *fakeDeliverer) AttemptDelivery(_ context.Context, _ client.Payload) client.Outcome {
	return f.outcome
}

func newTestRouter(t *testing.T, deliverer service.Deliverer) (http.Handler, *repository.MessageRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Message{}))
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewMessageRepository(db)
	cfg := &config.Config{System: config.SystemConfig{Name: "Bob", Version: "1.0.0"}}
	svc := service.NewMessageService(repo, deliverer, cfg, zerolog.Nop())
	h := NewHandler(svc, cfg.System.Name, cfg.System.Version, zerolog.Nop())
	return SetupRouter(h, testAPIKey, zerolog.Nop()), repo
}

func doRequest(router http.Handler, method, path, apiKey, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if apiKey != "" {
		req.Header.Set(HeaderAPIKey, apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthIsOpen(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDeliverer{})

	w := doRequest(router, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "Bob", body["system"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestAuthRejectsMissingOrWrongKey(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDeliverer{})

	w := doRequest(router, http.MethodPost, "/inbox", "", `{"sender":"Patterson","content":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodPost, "/inbox", "wrong-key", `{"sender":"Patterson","content":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// exact match is case-sensitive
	w = doRequest(router, http.MethodPost, "/inbox", strings.ToUpper(testAPIKey), `{"sender":"Patterson","content":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReceiveMessageStoresInboxRow(t *testing.T) {
	router, repo := newTestRouter(t, &fakeDeliverer{})

	w := doRequest(router, http.MethodPost, "/inbox", testAPIKey,
		`{"sender":"Patterson","content":"hello","priority":"urgent","message_type":"task","context_id":"t-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "received", body["status"])
	require.NotEmpty(t, body["id"])

	got, err := repo.GetByID(context.Background(), body["id"])
	require.NoError(t, err)
	assert.Equal(t, model.DirectionInbox, got.Direction)
	assert.Equal(t, model.StatusReceived, got.Status)
	assert.Equal(t, model.PriorityUrgent, got.Priority)
	assert.Equal(t, model.TypeTask, got.MessageType)
	assert.Equal(t, "t-1", got.ContextID)
}

func TestReceiveMessageValidation(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDeliverer{})

	w := doRequest(router, http.MethodPost, "/inbox", testAPIKey, `{"sender":"Patterson"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/inbox", testAPIKey,
		`{"sender":"Patterson","content":"hi","priority":"low"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessageReturnsPendingAck(t *testing.T) {
	router, repo := newTestRouter(t, &fakeDeliverer{outcome: client.Outcome{
		Kind:   client.OutcomeNetworkError,
		Reason: "connection refused",
	}})

	w := doRequest(router, http.MethodPost, "/outbox", testAPIKey, `{"content":"hello","priority":"high"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	// the ack is always pending; delivery outcome surfaces through history
	assert.Equal(t, "pending", body["status"])
	require.NotEmpty(t, body["id"])

	got, err := repo.GetByID(context.Background(), body["id"])
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
}

func TestSendReachablePeerEndToEnd(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inbox", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer remote.Close()

	peer, err := client.NewPeerClient(remote.URL, "remote-key",
		resolver.NewCachedResolver(5*time.Minute), 5*time.Second, 3*time.Second, zerolog.Nop())
	require.NoError(t, err)

	router, repo := newTestRouter(t, peer)

	w := doRequest(router, http.MethodPost, "/outbox", testAPIKey, `{"content":"hello","priority":"high"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	got, err := repo.GetByID(context.Background(), body["id"])
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestGetHistory(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDeliverer{outcome: client.Outcome{Kind: client.OutcomeSuccess}})

	w := doRequest(router, http.MethodPost, "/outbox", testAPIKey, `{"content":"first"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(router, http.MethodPost, "/inbox", testAPIKey, `{"sender":"Patterson","content":"second"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/messages", testAPIKey, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []model.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	w = doRequest(router, http.MethodGet, "/messages?direction=inbox", testAPIKey, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Patterson", body.Messages[0].Sender)

	w = doRequest(router, http.MethodGet, "/messages?direction=diagonal", testAPIKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/messages?limit=zero", testAPIKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

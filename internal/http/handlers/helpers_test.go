package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:social_handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// testConvRepo implements services.ConversationRepo over the repo package
// (like router.go).
type testConvRepo struct{}

func (testConvRepo) CreateConversation(ctx context.Context, db *gorm.DB, participants ...string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, participants...)
}

func (testConvRepo) FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	return repo.FindDirectConversation(ctx, db, a, b)
}

func (testConvRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

func (testConvRepo) ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	return repo.ListConversationsForUser(ctx, db, userID)
}

func (testConvRepo) IsParticipant(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	return repo.IsParticipant(ctx, db, id, userID)
}

// memStore is an in-memory media.Store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key, _ string, r io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return "https://cdn.test/" + key, nil
}

type fixture struct {
	db    *gorm.DB
	r     *gin.Engine
	store *memStore
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	bus := realtime.NewBus()
	versions := realtime.NewVersions(bus)
	t.Cleanup(versions.Close)
	store := &memStore{objects: map[string][]byte{}}

	graph := services.NewGraphService(db, bus)
	h := New(Services{
		Feed:          services.NewFeedService(db, graph),
		Graph:         graph,
		Posts:         services.NewPostService(db, bus, store),
		Engagement:    services.NewEngagementService(db, bus),
		Stories:       services.NewStoryService(db, bus, store),
		Profiles:      services.NewProfileService(db, bus),
		Notifications: services.NewNotificationService(db, bus),
		Messaging:     services.NewMessagingService(db, testConvRepo{}, bus),
	}, Options{
		DB:             db,
		Versions:       versions,
		MaxUploadBytes: opts.MaxUploadBytes,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(ctx context.Context, uid, resourceID, key string, now time.Time) (bool, error) {
			rec, err := repo.FindIdempotent(ctx, db, repo.IdemKey{UserID: uid, ResourceID: resourceID, Key: key}, now)
			return err == nil && rec != nil, nil
		}))
	h.Register(r.Group("/api/v1"))

	return &fixture{db: db, r: r, store: store}
}

// do sends a JSON request as user (anonymous when ""). Extra headers are
// given as name/value pairs.
func (f *fixture) do(t *testing.T, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func (f *fixture) profile(t *testing.T, id, username string) {
	t.Helper()
	_, err := repo.EnsureProfile(context.Background(), f.db, id, username)
	require.NoError(t, err, "seed profile %s", id)
}

// post creates a post as owner through the API and returns it.
func (f *fixture) post(t *testing.T, owner, caption string) domain.Post {
	t.Helper()
	w := f.do(t, http.MethodPost, "/posts", owner, CreatePostRequest{ImageURL: "https://img.test/" + uuid.NewString(), Caption: caption})
	wantStatus(t, w, http.StatusCreated)
	var p domain.Post
	decode(t, w, &p)
	return p
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body=%s", w.Body.String())
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, "body=%s", w.Body.String())
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	var er ErrorResponse
	decode(t, w, &er)
	require.Equal(t, code, er.Code)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/models"
	"tuckbot-api/internal/repository"
	"tuckbot-api/internal/testutil"
	"tuckbot-api/internal/utils"

	"github.com/gin-gonic/gin"
)

const testToken = "test-token"

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router http.Handler
	repo   *repository.MemoryVideoRepository
	clock  *testutil.StubClock
}

func newTestServer(t *testing.T, opts ...repository.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := testutil.FixedClock()
	opts = append([]repository.Option{repository.WithClock(clock.Now)}, opts...)
	repo := repository.NewMemoryVideoRepository(opts...)
	return &testServer{
		router: newRouterFor(repo, clock),
		repo:   repo,
		clock:  clock,
	}
}

func newRouterFor(repo repository.VideoRepository, clock *testutil.StubClock) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	videos := NewVideoHandler(repo, logger, clock.Now)
	return NewRouter(videos, config.APIConfig{Token: testToken}, logger)
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return doRequest(t, s.router, method, path, body, testToken)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if env.Status != rec.Code {
		t.Fatalf("envelope status %d does not match HTTP status %d", env.Status, rec.Code)
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func createBody(id, title, mirror string) map[string]string {
	return map[string]string{"redditPostId": id, "redditPostTitle": title, "mirrorUrl": mirror}
}

func TestCreateThenGet(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/", createBody("abc", "T", "http://x"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	if env.Message != "Successfully created mirror in database" {
		t.Errorf("create message = %q", env.Message)
	}
	var created videoResponse
	decodeData(t, env, &created)
	if created != (videoResponse{RedditPostID: "abc", RedditPostTitle: "T", MirrorURL: "http://x"}) {
		t.Errorf("create data = %+v", created)
	}

	rec, env = s.do(t, http.MethodGet, "/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var got videoResponse
	decodeData(t, env, &got)
	if got.RedditPostTitle != "T" || got.MirrorURL != "http://x" {
		t.Errorf("get data = %+v", got)
	}
}

func TestCreateDuplicateReturnsSeeOther(t *testing.T) {
	s := newTestServer(t)

	if rec, _ := s.do(t, http.MethodPost, "/", createBody("abc", "T", "http://x")); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec, env := s.do(t, http.MethodPost, "/", createBody("abc", "Other", "http://y"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("second create status = %d, want 303", rec.Code)
	}
	var data map[string]string
	decodeData(t, env, &data)
	if len(data) != 1 || data["redditPostId"] != "abc" {
		t.Errorf("303 data = %v, want only redditPostId", data)
	}

	all, err := s.repo.FindAll(context.Background(), repository.OrderCreatedDesc)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 1 || all[0].RedditPostTitle != "T" {
		t.Fatalf("store = %+v, want the original row only", all)
	}
}

func TestCreateMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/", map[string]string{"redditPostId": "abc", "mirrorUrl": "http://x"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if env.Message != "Data missing from request" {
		t.Errorf("message = %q", env.Message)
	}
	var echoed videoResponse
	decodeData(t, env, &echoed)
	if echoed.RedditPostID != "abc" || echoed.MirrorURL != "http://x" || echoed.RedditPostTitle != "" {
		t.Errorf("echoed data = %+v", echoed)
	}

	if _, err := s.repo.FindByID(context.Background(), "abc"); !errors.Is(err, repository.ErrVideoNotFound) {
		t.Fatalf("video stored despite validation failure: %v", err)
	}
}

func TestCreateAcceptsFormBody(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"redditPostId": {"abc"}, "redditPostTitle": {"T"}, "mirrorUrl": {"http://x"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(TokenHeader, testToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
}

func TestGetVideo(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/missing", nil)
	if rec.Code != http.StatusNotFound || env.Message != "Video not found in database" {
		t.Fatalf("get missing = %d %q", rec.Code, env.Message)
	}
	var data idResponse
	decodeData(t, env, &data)
	if data.RedditPostID != "missing" {
		t.Errorf("404 data = %+v", data)
	}

	rec, env = s.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusUnprocessableEntity || env.Message != "redditPostId not provided" {
		t.Fatalf("get without id = %d %q", rec.Code, env.Message)
	}
}

func TestDeleteVideo(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodDelete, "/abc", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want 404", rec.Code)
	}

	s.do(t, http.MethodPost, "/", createBody("abc", "T", "http://x"))
	rec, env := s.do(t, http.MethodDelete, "/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
	var deleted videoResponse
	decodeData(t, env, &deleted)
	if deleted != (videoResponse{RedditPostID: "abc", RedditPostTitle: "T", MirrorURL: "http://x"}) {
		t.Errorf("delete data = %+v", deleted)
	}

	if rec, _ := s.do(t, http.MethodGet, "/abc", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}

	rec, _ = s.do(t, http.MethodDelete, "/", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("delete without id status = %d, want 422", rec.Code)
	}
}

func TestGetAllVideos(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var empty struct {
		Count  int            `json:"count"`
		Videos []models.Video `json:"videos"`
	}
	decodeData(t, env, &empty)
	if empty.Count != 0 || empty.Videos == nil {
		t.Fatalf("empty list = %+v (%s)", empty, env.Data)
	}

	for _, id := range []string{"first", "second", "third"} {
		s.do(t, http.MethodPost, "/", createBody(id, id, "http://"+id))
		s.clock.Advance(time.Hour)
	}

	_, env = s.do(t, http.MethodGet, "/all", nil)
	var list struct {
		Count  int            `json:"count"`
		Videos []models.Video `json:"videos"`
	}
	decodeData(t, env, &list)
	if list.Count != 3 || len(list.Videos) != 3 {
		t.Fatalf("list = %+v", list)
	}
	if list.Videos[0].RedditPostID != "third" || list.Videos[2].RedditPostID != "first" {
		t.Errorf("videos not ordered newest first: %s, %s, %s",
			list.Videos[0].RedditPostID, list.Videos[1].RedditPostID, list.Videos[2].RedditPostID)
	}
}

func TestPruneVideo(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/prune/abc", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("prune missing status = %d, want 404", rec.Code)
	}

	s.do(t, http.MethodPost, "/", createBody("abc", "T", "http://x"))
	s.clock.Advance(72 * time.Hour)

	rec, env = s.do(t, http.MethodPost, "/prune/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prune status = %d, want 200", rec.Code)
	}
	var data idResponse
	decodeData(t, env, &data)
	if data.RedditPostID != "abc" {
		t.Errorf("prune data = %+v", data)
	}

	video, err := s.repo.FindByID(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if video.LastPrunedAt == nil || !video.LastPrunedAt.Equal(s.clock.Now()) {
		t.Errorf("LastPrunedAt = %v, want %v", video.LastPrunedAt, s.clock.Now())
	}
}

type failingPruner struct{}

func (failingPruner) Prune(context.Context, *models.Video) error {
	return errors.New("mirror offline")
}

func TestPruneVideoFailure(t *testing.T) {
	s := newTestServer(t, repository.WithPruner(failingPruner{}))
	s.do(t, http.MethodPost, "/", createBody("abc", "T", "http://x"))

	rec, env := s.do(t, http.MethodPost, "/prune/abc", nil)
	if rec.Code != http.StatusInternalServerError || env.Message != "Unable to prune video" {
		t.Fatalf("prune = %d %q, want 500", rec.Code, env.Message)
	}
	var data failureResponse
	decodeData(t, env, &data)
	if data.RedditPostID != "abc" || !strings.Contains(data.Message, "mirror offline") {
		t.Errorf("failure data = %+v", data)
	}
}

func TestGetStaleVideos(t *testing.T) {
	s := newTestServer(t)
	start := s.clock.Now()

	// Twelve videos created two days before "now", then one fresh video.
	for i := 0; i < 12; i++ {
		s.do(t, http.MethodPost, "/", createBody(string(rune('a'+i)), "T", "http://x"))
		s.clock.Advance(time.Minute)
	}
	s.clock.Set(start.AddDate(0, 0, 2))
	s.do(t, http.MethodPost, "/", createBody("fresh", "T", "http://x"))

	// Pruning "a" now keeps it out of the stale list.
	s.do(t, http.MethodPost, "/prune/a", nil)

	rec, env := s.do(t, http.MethodGet, "/stalevideos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data struct {
		StaleVideos []staleVideoResponse `json:"staleVideos"`
	}
	decodeData(t, env, &data)
	if len(data.StaleVideos) != repository.StaleLimit {
		t.Fatalf("len(staleVideos) = %d, want %d", len(data.StaleVideos), repository.StaleLimit)
	}
	if data.StaleVideos[0].RedditPostID != "b" {
		t.Errorf("first stale video = %q, want b", data.StaleVideos[0].RedditPostID)
	}
	for _, v := range data.StaleVideos {
		if v.RedditPostID == "a" || v.RedditPostID == "fresh" {
			t.Errorf("unexpected stale video %q", v.RedditPostID)
		}
	}
}

func TestAuthGate(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name        string
		token       string
		wantStatus  int
		wantMessage string
	}{
		{"missing header", "", http.StatusUnprocessableEntity, "Auth parameters not provided"},
		{"wrong token", "nope", http.StatusUnauthorized, "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/", "/prune/abc", "/nowhere/at/all"} {
				rec, env := doRequest(t, s.router, http.MethodPost, path, createBody("abc", "T", "http://x"), tt.token)
				if rec.Code != tt.wantStatus || env.Message != tt.wantMessage {
					t.Errorf("POST %s = %d %q, want %d %q", path, rec.Code, env.Message, tt.wantStatus, tt.wantMessage)
				}
			}
			if _, err := s.repo.FindByID(context.Background(), "abc"); !errors.Is(err, repository.ErrVideoNotFound) {
				t.Fatalf("rejected request created a video: %v", err)
			}
		})
	}
}

func TestAuthGateWithTokenHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := utils.HashToken(testToken)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	videos := NewVideoHandler(repository.NewMemoryVideoRepository(), logger, nil)
	router := NewRouter(videos, config.APIConfig{TokenHash: hash}, logger)

	if rec, _ := doRequest(t, router, http.MethodGet, "/all", nil, testToken); rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rec.Code)
	}
	if rec, _ := doRequest(t, router, http.MethodGet, "/all", nil, hash); rec.Code != http.StatusUnauthorized {
		t.Fatalf("hash used as token status = %d, want 401", rec.Code)
	}
}

func TestUnknownRouteAndRequestID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/abc", nil)
	req.Header.Set(TokenHeader, testToken)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}

	rec, _ = s.do(t, http.MethodGet, "/all", nil)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("generated X-Request-Id missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	videos := NewVideoHandler(repository.NewMemoryVideoRepository(), logger, nil)
	router := NewRouter(videos, config.APIConfig{
		Token:       testToken,
		CORSOrigins: []string{"https://admin.example.com"},
	}, logger)

	req := httptest.NewRequest(http.MethodOptions, "/all", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// brokenRepo fails every call with a store error.
type brokenRepo struct{}

var errStore = errors.New("connection refused")

func (brokenRepo) FindByID(context.Context, string) (*models.Video, error) { return nil, errStore }
func (brokenRepo) FindAll(context.Context, repository.Order) ([]models.Video, error) {
	return nil, errStore
}
func (brokenRepo) FindStale(context.Context, time.Time) ([]models.Video, error) {
	return nil, errStore
}
func (brokenRepo) Create(context.Context, *models.Video) error { return errStore }
func (brokenRepo) Delete(context.Context, *models.Video) error { return errStore }
func (brokenRepo) Prune(context.Context, *models.Video) error  { return errStore }

func TestStoreFailuresReturnInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newRouterFor(brokenRepo{}, testutil.FixedClock())

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/abc", nil},
		{http.MethodGet, "/all", nil},
		{http.MethodGet, "/stalevideos", nil},
		{http.MethodPost, "/", createBody("abc", "T", "http://x")},
		{http.MethodPost, "/prune/abc", nil},
		{http.MethodDelete, "/abc", nil},
	}
	for _, r := range requests {
		rec, env := doRequest(t, router, r.method, r.path, r.body, testToken)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s status = %d, want 500", r.method, r.path, rec.Code)
		}
		if !strings.Contains(string(env.Data), errStore.Error()) {
			t.Errorf("%s %s data = %s, want echoed error", r.method, r.path, env.Data)
		}
	}
}

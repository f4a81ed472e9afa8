package surrealsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"github.com/surrealdb/surrealsync/pkg/store/memdoc"
	"github.com/surrealdb/surrealsync/pkg/syncengine"
	"github.com/surrealdb/surrealsync/pkg/synctesting"
)

type AppSuite struct {
	suite.Suite

	docs *memdoc.Store
	app  *App
	out  *bytes.Buffer
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	config := DefaultConfig()
	config.DocumentStore = DocumentStoreMemory
	s.Require().NoError(config.Validate())

	s.docs = memdoc.New()
	app, err := newApp(config, synctesting.NewRelationalStore(s.T()), s.docs, zerolog.Nop())
	s.Require().NoError(err)
	s.out = &bytes.Buffer{}
	app.out = s.out
	s.app = app
}

func (s *AppSuite) TearDownTest() {
	s.app.engine.Shutdown(context.Background())
}

func (s *AppSuite) serve(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.app.router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func (s *AppSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().Equal("application/json", rec.Header().Get("Content-Type"))
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

// failMirror saves a user while the document store rejects writes, leaving
// one pending sync error.
func (s *AppSuite) failMirror(id string) {
	ctx := context.Background()
	s.docs.FailWrites(errors.New("unavailable"))
	s.Require().NoError(s.app.Writer().SaveUser(ctx, &models.User{ID: id, Email: id + "@example.com"}))
	s.docs.FailWrites(nil)
}

func (s *AppSuite) TestHealth() {
	rec := s.serve(http.MethodGet, "/api/health")
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.decode(rec, &body)
	s.Equal("healthy", body["status"])
	s.Equal(float64(0), body["listeners"])
	s.Equal(false, body["read_only"])
}

func (s *AppSuite) TestStats() {
	s.Require().NoError(s.app.Writer().SaveUser(context.Background(), &models.User{ID: "u1"}))
	s.failMirror("u2")

	rec := s.serve(http.MethodGet, "/api/sync/stats?days=30")
	s.Equal(http.StatusOK, rec.Code)

	var stats syncengine.SyncStatistics
	s.decode(rec, &stats)
	s.Equal(30, stats.Days)
	s.Equal(int64(3), stats.TotalEvents)
	s.Equal(int64(1), stats.FailedEvents)
	s.Equal(int64(1), stats.SyncErrors[models.SyncErrorPending])

	s.Equal(http.StatusBadRequest, s.serve(http.MethodGet, "/api/sync/stats?days=week").Code)
}

func (s *AppSuite) TestFailed() {
	s.failMirror("u1")

	rec := s.serve(http.MethodGet, "/api/sync/failed?limit=10")
	s.Equal(http.StatusOK, rec.Code)

	var failed []models.SyncError
	s.decode(rec, &failed)
	s.Require().Len(failed, 1)
	s.Equal("u1", failed[0].EntityID)
	s.Equal(models.SyncErrorPending, failed[0].Status)
	s.Zero(failed[0].RetryCount)

	s.Equal(http.StatusBadRequest, s.serve(http.MethodGet, "/api/sync/failed?limit=-1").Code)
}

func (s *AppSuite) TestRetry() {
	s.failMirror("u1")

	rec := s.serve(http.MethodPost, "/api/sync/retry")
	s.Equal(http.StatusOK, rec.Code)

	var report syncengine.RetryReport
	s.decode(rec, &report)
	s.Equal(1, report.Attempted)
	s.Equal(1, report.Resolved)

	doc, err := s.docs.Get(context.Background(), synctesting.Ref("users", "u1"))
	s.Require().NoError(err)
	s.NotNil(doc)

	s.Equal(http.StatusMethodNotAllowed, s.serve(http.MethodGet, "/api/sync/retry").Code)
}

func (s *AppSuite) TestRetryRefusedWhenReadOnly() {
	s.app.SetReadOnly(true)
	s.Equal(http.StatusConflict, s.serve(http.MethodPost, "/api/sync/retry").Code)
}

func (s *AppSuite) TestMetrics() {
	s.Require().NoError(s.app.Writer().SaveUser(context.Background(), &models.User{ID: "u1"}))

	rec := s.serve(http.MethodGet, "/metrics")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "surrealsync_")
	s.Contains(rec.Body.String(), "go_goroutines")
}

func (s *AppSuite) TestExecuteReportsAreReadOnly() {
	ctx := context.Background()
	s.failMirror("u1")

	s.Require().NoError(s.app.Execute(ctx, &FailedCommand{Limit: 5}))
	var failed []models.SyncError
	s.Require().NoError(json.Unmarshal(s.out.Bytes(), &failed))
	s.Len(failed, 1)
	s.True(s.app.IsReadOnly())

	err := s.app.Writer().SaveUser(ctx, &models.User{ID: "u2"})
	s.ErrorIs(err, store.ErrReadOnly)
	s.ErrorIs(s.app.Execute(ctx, &MigrateCommand{}), store.ErrReadOnly)
}

func (s *AppSuite) TestExecuteStats() {
	s.Require().NoError(s.app.Execute(context.Background(), &StatsCommand{Days: 1}))
	var stats syncengine.SyncStatistics
	s.Require().NoError(json.Unmarshal(s.out.Bytes(), &stats))
	s.Equal(1, stats.Days)
}

func (s *AppSuite) TestExecutePushAndRetry() {
	ctx := context.Background()
	s.Require().NoError(s.app.Writer().SaveUser(ctx, &models.User{ID: "u1", Email: "a@example.com"}))
	ref := synctesting.Ref("users", "u1")
	s.Require().NoError(s.docs.Delete(ctx, ref))

	s.Require().NoError(s.app.Execute(ctx, &PushCommand{EntityType: "users", EntityID: "u1"}))
	doc, err := s.docs.Get(ctx, ref)
	s.Require().NoError(err)
	s.Require().NotNil(doc)
	s.Equal("a@example.com", doc.Fields["email"])

	s.Error(s.app.Execute(ctx, &PushCommand{EntityType: "widgets", EntityID: "w1"}))

	s.Require().NoError(s.app.Execute(ctx, &RetryCommand{}))
	var report syncengine.RetryReport
	s.Require().NoError(json.Unmarshal(s.out.Bytes(), &report))
	s.Zero(report.Attempted)
}

func (s *AppSuite) TestExecuteMigrate() {
	s.NoError(s.app.Execute(context.Background(), &MigrateCommand{}))
}

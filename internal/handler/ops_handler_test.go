package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/middleware"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/service"
	"github.com/noah-isme/tourney-pipeline/pkg/jobs"
	"github.com/noah-isme/tourney-pipeline/pkg/middleware/requestid"
)

type publisherMock struct {
	topic   string
	payload interface{}
	err     error
}

func (p *publisherMock) Publish(ctx context.Context, topic string, meta models.MessageMeta, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.topic, p.payload = topic, payload
	return nil
}

type completionMock struct {
	triggered bool
	err       error
	checked   int64
}

func (m *completionMock) CheckAndTrigger(ctx context.Context, tournamentID int64) (bool, error) {
	m.checked = tournamentID
	return m.triggered, m.err
}

type enqueuerMock struct {
	jobs []jobs.Job
	err  error
}

func (e *enqueuerMock) Enqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

type reservationMock struct {
	status models.ReservationStatus
}

func (r *reservationMock) Status(ctx context.Context, t models.ResourceType, id int64) (models.ReservationStatus, error) {
	return r.status, nil
}

type opsFixture struct {
	router     *gin.Engine
	publisher  *publisherMock
	completion *completionMock
	queue      *enqueuerMock
	metrics    *service.MetricsService
}

func newOpsFixture(checks map[string]ReadinessCheck) *opsFixture {
	gin.SetMode(gin.TestMode)
	fx := &opsFixture{
		publisher:  &publisherMock{},
		completion: &completionMock{triggered: true},
		queue:      &enqueuerMock{},
		metrics:    service.NewMetricsService(),
	}
	fx.router = gin.New()
	fx.router.Use(requestid.Middleware(), middleware.Metrics(fx.metrics))
	RegisterRoutes(fx.router, Handlers{
		Metrics:      NewMetricsHandler(fx.metrics, checks),
		Tournaments:  NewTournamentOpsHandler(fx.publisher, fx.completion, fx.queue),
		Reservations: NewReservationHandler(&reservationMock{status: models.ReservationPending}),
	})
	return fx
}

func (fx *opsFixture) do(method, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var envelope struct {
		Data  map[string]interface{} `json:"data"`
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	if envelope.Data != nil {
		return envelope.Data
	}
	return envelope.Error
}

func TestRunAutomationPublishesWithRequestCorrelation(t *testing.T) {
	fx := newOpsFixture(nil)

	w := fx.do(http.MethodPost, "/internal/tournaments/12/automation-checks?override=true", "X-Request-ID", "req-77")
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, messaging.TopicAutomationRun, fx.publisher.topic)
	msg := fx.publisher.payload.(models.AutomationCheckMessage)
	assert.Equal(t, int64(12), msg.TournamentID)
	assert.True(t, msg.OverrideFinalized)
	assert.Equal(t, "req-77", msg.CorrelationID)
	assert.Equal(t, models.PriorityHigh, msg.Priority)
	assert.False(t, msg.ReleaseTrigger)

	data := decodeData(t, w)
	assert.Equal(t, "req-77", data["correlationId"])
}

func TestRunAutomationValidatesInput(t *testing.T) {
	fx := newOpsFixture(nil)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodPost, "/internal/tournaments/abc/automation-checks").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodPost, "/internal/tournaments/0/automation-checks").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodPost, "/internal/tournaments/1/automation-checks?override=maybe").Code)
	assert.Nil(t, fx.publisher.payload)
}

func TestRunAutomationBrokerFailure(t *testing.T) {
	fx := newOpsFixture(nil)
	fx.publisher.err = errors.New("router closed")

	w := fx.do(http.MethodPost, "/internal/tournaments/3/automation-checks")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeData(t, w)["code"])
}

func TestCheckCompletion(t *testing.T) {
	fx := newOpsFixture(nil)

	w := fx.do(http.MethodPost, "/internal/tournaments/5/completion-check")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), fx.completion.checked)
	assert.Equal(t, true, decodeData(t, w)["triggered"])
}

func TestRebuildStatsEnqueuesJob(t *testing.T) {
	fx := newOpsFixture(nil)

	w := fx.do(http.MethodPost, "/internal/tournaments/8/stats")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, service.NewStatsJob(8), fx.queue.jobs[0])

	fx.queue.err = errors.New("queue stopped")
	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodPost, "/internal/tournaments/8/stats").Code)
}

func TestReservationStatus(t *testing.T) {
	fx := newOpsFixture(nil)

	w := fx.do(http.MethodGet, "/internal/reservations/match/44")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "match", data["type"])
	assert.Equal(t, "pending", data["status"])

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/internal/reservations/replay/44").Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	fx := newOpsFixture(map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := fx.do(http.MethodGet, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	assert.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/health").Code)
}

func TestSummaryCountsRequests(t *testing.T) {
	fx := newOpsFixture(nil)
	fx.do(http.MethodGet, "/health")

	w := fx.do(http.MethodGet, "/internal/summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeData(t, w)["requestsTotal"])

	metrics := fx.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "http_requests_total")
}

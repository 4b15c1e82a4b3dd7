package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/internal/scheduling/application/services"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/eventbus"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/locking"
)

var apiNow = time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)

type stubCaptureRepo struct {
	mu       sync.Mutex
	captures map[uuid.UUID]*domain.Capture
}

func (r *stubCaptureRepo) Save(ctx context.Context, c *domain.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[c.ID()] = c
	return nil
}

func (r *stubCaptureRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captures[id], nil
}

func (r *stubCaptureRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Capture, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.captures[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubPlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*domain.Plan
}

func (r *stubPlanRepo) Save(ctx context.Context, p *domain.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID()] = p
	return nil
}

func (r *stubPlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plans[id], nil
}

type stubChunkRepo struct {
	mu     sync.Mutex
	chunks map[uuid.UUID][]domain.Chunk
}

func (r *stubChunkRepo) ReplaceForCapture(ctx context.Context, captureID uuid.UUID, chunks []domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[captureID] = chunks
	return nil
}

func (r *stubChunkRepo) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[captureID], nil
}

func (r *stubChunkRepo) DeleteForCapture(ctx context.Context, captureID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, captureID)
	return nil
}

type stubGateway struct {
	mu     sync.Mutex
	seq    int
	events map[string]calendarDomain.Event
}

func (g *stubGateway) ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]calendarDomain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []calendarDomain.Event
	for _, e := range g.events {
		if e.Start.Before(timeMax) && e.End.After(timeMin) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *stubGateway) CreateEvent(ctx context.Context, userID uuid.UUID, in calendarDomain.CreateEventInput) (*calendarDomain.CreatedEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("evt-%d", g.seq)
	g.events[id] = calendarDomain.Event{
		ID: id, Summary: in.Summary, Start: in.Start, End: in.End,
		Private: map[string]string{
			calendarDomain.PropManaged:   "true",
			calendarDomain.PropCaptureID: in.CaptureID.String(),
		},
	}
	return &calendarDomain.CreatedEvent{ID: id, ETag: `"tag"`}, nil
}

func (g *stubGateway) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*calendarDomain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.events[eventID]
	if !ok {
		return nil, calendarDomain.ErrEventNotFound
	}
	return &e, nil
}

func (g *stubGateway) DeleteEvent(ctx context.Context, userID uuid.UUID, eventID, etag string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.events, eventID)
	return nil
}

type apiFixture struct {
	userID   uuid.UUID
	captures *stubCaptureRepo
	mux      *http.ServeMux
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{
		userID:   uuid.New(),
		captures: &stubCaptureRepo{captures: make(map[uuid.UUID]*domain.Capture)},
	}
	plans := &stubPlanRepo{plans: make(map[uuid.UUID]*domain.Plan)}
	chunks := &stubChunkRepo{chunks: make(map[uuid.UUID][]domain.Chunk)}
	gateway := &stubGateway{events: make(map[string]calendarDomain.Event)}
	logger := slog.Default()
	weights := domain.DefaultPriorityWeights()
	clock := func() time.Time { return apiNow }

	ingest := commands.NewIngestCaptureHandler(f.captures, nil, logger).WithClock(clock)
	schedule := commands.NewScheduleCaptureHandler(
		f.captures, plans, chunks, gateway, locking.NewLocalLocker(), eventbus.NoopPublisher{},
		services.NewConflictResolver(weights, logger),
		services.NewDecisionBuilder(nil, logger),
		weights, logger,
	).WithClock(clock)
	undo := commands.NewUndoPlanHandler(f.captures, plans, chunks, gateway, eventbus.NoopPublisher{}, weights, logger).WithClock(clock)

	handlers := &Handlers{ingest: ingest, schedule: schedule, undo: undo, logger: logger}
	f.mux = http.NewServeMux()
	f.mux.HandleFunc("GET /health", handlers.Health)
	f.mux.HandleFunc("POST /api/v1/captures", handlers.IngestCapture)
	f.mux.HandleFunc("POST /api/v1/captures/{captureID}/schedule", handlers.ScheduleCapture)
	f.mux.HandleFunc("POST /api/v1/captures/{captureID}/complete", handlers.CompleteCapture)
	f.mux.HandleFunc("POST /api/v1/plans/{planID}/undo", handlers.UndoPlan)
	return f
}

func (f *apiFixture) do(method, path, body string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if authenticated {
		req.Header.Set("X-User-ID", f.userID.String())
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodGet, "/health", "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestIngestRequiresUserHeader(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures", `{"content": "task"}`, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestCreatesCapture(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures", `{"content": "write report"}`, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "write report", payload["content"])
	assert.Equal(t, "pending", payload["status"])
	assert.Equal(t, "task", payload["kind"])
}

func TestIngestNormalizesRoutines(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures", `{"content": "sleep"}`, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "routine.sleep", payload["kind"])
	assert.Equal(t, "window", payload["constraint_type"])
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures", `{"content": "  "}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "invalid_input", errBody["code"])
}

func TestScheduleEndpointPlacesCapture(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "quick errand")
	c.EstimatedMinutes = 30
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", `{}`, true)

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	capture := payload["capture"].(map[string]any)
	assert.Equal(t, "scheduled", capture["status"])
	assert.Equal(t, "2025-10-25T12:05:00Z", capture["planned_start"])
	require.Contains(t, payload, "plan")
}

func TestScheduleEndpointUnknownCapture(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures/"+uuid.NewString()+"/schedule", `{}`, true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "capture_not_found", errBody["code"])
}

func TestScheduleEndpointMalformedCaptureID(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/captures/not-a-uuid/schedule", `{}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleEndpointForeignCapture(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(uuid.New(), "someone else's task")
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", `{}`, true)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScheduleEndpointNoSlotConflict(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "overnight batch check")
	c.EstimatedMinutes = 120
	start := time.Date(2025, 10, 26, 1, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 26, 2, 30, 0, 0, time.UTC)
	c.ConstraintType = domain.ConstraintWindow
	c.WindowStart = &start
	c.WindowEnd = &end
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", `{}`, true)

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "no_slot", errBody["code"])
	assert.Equal(t, "window", errBody["mode"])
	assert.Equal(t, float64(120), errBody["duration_minutes"])
}

func TestScheduleEndpointPreferredPastDeadline(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "board deck")
	c.EstimatedMinutes = 60
	deadline := time.Date(2025, 10, 25, 15, 0, 0, 0, time.UTC)
	c.ConstraintType = domain.ConstraintDeadlineTime
	c.DeadlineAt = &deadline
	_ = f.captures.Save(context.Background(), c)

	body := `{"preferred": {"start": "2025-10-25T16:00:00Z", "end": "2025-10-25T17:00:00Z"}}`
	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", body, true)

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "slot_exceeds_deadline", errBody["code"])
	assert.Equal(t, "2025-10-25T15:00:00Z", errBody["deadline"])
}

func TestScheduleEndpointRejectsUnknownTimezone(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "demo")
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule",
		`{"timezone": "Mars/Olympus_Mons"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "invalid_input", errBody["code"])
}

func TestScheduleEndpointAcceptsNamedTimezone(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "quick errand")
	c.EstimatedMinutes = 30
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule",
		`{"timezone": "UTC"}`, true)

	require.Equal(t, http.StatusOK, rec.Code)
	capture := decode(t, rec)["capture"].(map[string]any)
	assert.Equal(t, "scheduled", capture["status"])
}

func TestScheduleEndpointRejectsInvertedPreferredSlot(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "demo")
	_ = f.captures.Save(context.Background(), c)

	body := `{"preferred": {"start": "2025-10-25T15:00:00Z", "end": "2025-10-25T14:00:00Z"}}`
	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", body, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteEndpoint(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "pay invoice")
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/complete", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["status"])
}

func TestUndoEndpointRoundTrip(t *testing.T) {
	f := newAPIFixture()
	c := domain.NewCapture(f.userID, "quick errand")
	c.EstimatedMinutes = 30
	_ = f.captures.Save(context.Background(), c)

	rec := f.do(http.MethodPost, "/api/v1/captures/"+c.ID().String()+"/schedule", `{}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	planID := decode(t, rec)["plan"].(map[string]any)["id"].(string)

	rec = f.do(http.MethodPost, "/api/v1/plans/"+planID+"/undo", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", string(c.Status))

	// Undoing again conflicts.
	rec = f.do(http.MethodPost, "/api/v1/plans/"+planID+"/undo", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "plan_already_undone", errBody["code"])
}

func TestUndoEndpointUnknownPlan(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(http.MethodPost, "/api/v1/plans/"+uuid.NewString()+"/undo", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

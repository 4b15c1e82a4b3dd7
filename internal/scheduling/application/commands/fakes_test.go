package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

type memCaptureRepo struct {
	mu       sync.Mutex
	captures map[uuid.UUID]*domain.Capture
}

func newMemCaptureRepo() *memCaptureRepo {
	return &memCaptureRepo{captures: make(map[uuid.UUID]*domain.Capture)}
}

func (r *memCaptureRepo) Save(ctx context.Context, c *domain.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[c.ID()] = c
	return nil
}

func (r *memCaptureRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captures[id], nil
}

func (r *memCaptureRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Capture, error) {
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

type memPlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*domain.Plan
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{plans: make(map[uuid.UUID]*domain.Plan)}
}

func (r *memPlanRepo) Save(ctx context.Context, p *domain.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID()] = p
	return nil
}

func (r *memPlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plans[id], nil
}

type memChunkRepo struct {
	mu     sync.Mutex
	chunks map[uuid.UUID][]domain.Chunk
}

func newMemChunkRepo() *memChunkRepo {
	return &memChunkRepo{chunks: make(map[uuid.UUID][]domain.Chunk)}
}

func (r *memChunkRepo) ReplaceForCapture(ctx context.Context, captureID uuid.UUID, chunks []domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[captureID] = chunks
	return nil
}

func (r *memChunkRepo) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[captureID], nil
}

func (r *memChunkRepo) DeleteForCapture(ctx context.Context, captureID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, captureID)
	return nil
}

// fakeGateway is an in-memory calendar. Created events get sequential IDs and
// entity tags; deletes of missing events succeed, mirroring the provider.
type fakeGateway struct {
	mu         sync.Mutex
	seq        int
	events     map[string]calendarDomain.Event
	deleted    []string
	failCreate error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(map[string]calendarDomain.Event)}
}

func (g *fakeGateway) seed(e calendarDomain.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[e.ID] = e
}

func (g *fakeGateway) has(eventID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.events[eventID]
	return ok
}

func (g *fakeGateway) event(eventID string) calendarDomain.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.events[eventID]
}

func (g *fakeGateway) ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]calendarDomain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []calendarDomain.Event
	for _, e := range g.events {
		if e.Start.Before(timeMax) && e.End.After(timeMin) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (g *fakeGateway) CreateEvent(ctx context.Context, userID uuid.UUID, in calendarDomain.CreateEventInput) (*calendarDomain.CreatedEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate != nil {
		err := g.failCreate
		g.failCreate = nil
		return nil, err
	}
	g.seq++
	id := fmt.Sprintf("evt-%d", g.seq)
	etag := fmt.Sprintf(`"tag-%d"`, g.seq)
	g.events[id] = calendarDomain.Event{
		ID:      id,
		Summary: in.Summary,
		Start:   in.Start,
		End:     in.End,
		ETag:    etag,
		Private: map[string]string{
			calendarDomain.PropManaged:   "true",
			calendarDomain.PropCaptureID: in.CaptureID.String(),
		},
	}
	return &calendarDomain.CreatedEvent{ID: id, ETag: etag}, nil
}

func (g *fakeGateway) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*calendarDomain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.events[eventID]
	if !ok {
		return nil, calendarDomain.ErrEventNotFound
	}
	return &e, nil
}

func (g *fakeGateway) DeleteEvent(ctx context.Context, userID uuid.UUID, eventID, etag string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.events[eventID]; !ok {
		return nil
	}
	delete(g.events, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

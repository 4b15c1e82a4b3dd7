package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	schedulingDomain "github.com/diaguru/diaguru/internal/scheduling/domain"
)

type stubTokens struct {
	token        string
	refreshed    string
	refreshCalls int
	reconnects   int
}

func (s *stubTokens) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.token, nil
}

func (s *stubTokens) ForceRefresh(ctx context.Context, userID uuid.UUID) (string, error) {
	s.refreshCalls++
	return s.refreshed, nil
}

func (s *stubTokens) MarkReconnect(ctx context.Context, userID uuid.UUID) error {
	s.reconnects++
	return nil
}

func newTestClient(serverURL string, tokens *stubTokens) *Client {
	return NewClient(tokens, nil).WithBaseURL(serverURL)
}

func TestListEventsSkipsAllDayEntries(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.NotEmpty(t, r.URL.Query().Get("timeMin"))
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": "evt-1", "etag": "\"e1\"", "summary": "standup",
				 "start": {"dateTime": "2025-10-25T14:00:00Z"},
				 "end": {"dateTime": "2025-10-25T14:30:00Z"}},
				{"id": "evt-2", "summary": "holiday",
				 "start": {}, "end": {}}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubTokens{token: "tok"})
	events, err := client.ListEvents(context.Background(), uuid.New(),
		time.Now(), time.Now().Add(24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, `"e1"`, events[0].ETag)
}

func TestCreateEventCarriesExtendedProperties(t *testing.T) {
	captureID := uuid.New()
	planID := uuid.New()
	var got googleEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": "evt-9", "etag": "\"e9\""}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubTokens{token: "tok"})
	created, err := client.CreateEvent(context.Background(), uuid.New(), calendarDomain.CreateEventInput{
		Summary:       "board deck",
		Start:         time.Date(2025, 10, 25, 14, 0, 0, 0, time.UTC),
		End:           time.Date(2025, 10, 25, 15, 0, 0, 0, time.UTC),
		CaptureID:     captureID,
		ActionID:      uuid.New(),
		PlanID:        &planID,
		PriorityScore: 12.5,
	})

	require.NoError(t, err)
	assert.Equal(t, "evt-9", created.ID)
	assert.Equal(t, `"e9"`, created.ETag)

	private := got.ExtendedProperties.Private
	assert.Equal(t, "true", private[calendarDomain.PropManaged])
	assert.Equal(t, captureID.String(), private[calendarDomain.PropCaptureID])
	assert.Equal(t, planID.String(), private[calendarDomain.PropPlanID])
	assert.Equal(t, "12.500", private[calendarDomain.PropPrioritySnapshot])
	assert.Equal(t, "2025-10-25T14:00:00Z", got.Start.DateTime)
}

func TestDeleteEventSendsIfMatchAndTreatsGoneAsSuccess(t *testing.T) {
	var gotIfMatch string
	status := http.StatusNotFound
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfMatch = r.Header.Get("If-Match")
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubTokens{token: "tok"})

	err := client.DeleteEvent(context.Background(), uuid.New(), "evt-1", `"e1"`)
	require.NoError(t, err)
	assert.Equal(t, `"e1"`, gotIfMatch)

	status = http.StatusPreconditionFailed
	err = client.DeleteEvent(context.Background(), uuid.New(), "evt-1", `"stale"`)
	assert.ErrorIs(t, err, calendarDomain.ErrPreconditionFailed)
}

func TestDoRetriesOnceAfterTokenRefresh(t *testing.T) {
	var tokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		if len(tokens) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	stub := &stubTokens{token: "stale", refreshed: "fresh"}
	client := newTestClient(server.URL, stub)

	_, err := client.ListEvents(context.Background(), uuid.New(), time.Now(), time.Now().Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, stub.refreshCalls)
	require.Len(t, tokens, 2)
	assert.Equal(t, "Bearer stale", tokens[0])
	assert.Equal(t, "Bearer fresh", tokens[1])
}

func TestDoSurvivingUnauthorizedFlagsReconnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	stub := &stubTokens{token: "stale", refreshed: "still-stale"}
	client := newTestClient(server.URL, stub)

	_, err := client.ListEvents(context.Background(), uuid.New(), time.Now(), time.Now().Add(time.Hour))

	assert.ErrorIs(t, err, schedulingDomain.ErrNotLinked)
	assert.Equal(t, 1, stub.reconnects)
}

func TestDeleteWithRetryRepairsStaleETag(t *testing.T) {
	var deletes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			deletes = append(deletes, r.Header.Get("If-Match"))
			if r.Header.Get("If-Match") == `"stale"` {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id": "evt-1", "etag": "\"fresh\"",
				"summary": "standup",
				"start": {"dateTime": "2025-10-25T14:00:00Z"},
				"end": {"dateTime": "2025-10-25T14:30:00Z"}}`))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubTokens{token: "tok"})
	err := calendarDomain.DeleteWithRetry(context.Background(), client, uuid.New(), "evt-1", `"stale"`)

	require.NoError(t, err)
	assert.Equal(t, []string{`"stale"`, `"fresh"`}, deletes)
}

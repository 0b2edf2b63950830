package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/repository/memory"
	"threadcast-backend/internal/service/dispatch"
	"threadcast-backend/pkg/jwt"
	"threadcast-backend/pkg/metrics"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type testApp struct {
	t      *testing.T
	router *gin.Engine
	broker *pubsub.MemoryBroker
	store  *memory.Store
	jwt    *jwt.JWTManager

	alice, bob, mallory uuid.UUID
}

var testMetrics = metrics.NewMetrics("threadcast-test")

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	broker := pubsub.NewMemoryBroker()
	jwtManager := jwt.NewJWTManager("router-test-secret", "threadcast-api", time.Hour)

	svcs := NewServices(MemoryRepositories(store), broker, nil, dispatch.Options{})
	router := NewRouter(svcs, RouterOptions{
		ServiceName: "chat-service",
		JWT:         jwtManager,
		Metrics:     testMetrics,
	})

	app := &testApp{
		t:       t,
		router:  router,
		broker:  broker,
		store:   store,
		jwt:     jwtManager,
		alice:   uuid.New(),
		bob:     uuid.New(),
		mallory: uuid.New(),
	}
	for name, id := range map[string]uuid.UUID{"alice": app.alice, "bob": app.bob, "mallory": app.mallory} {
		store.PutUser(&domain.UserSummary{UserID: id, Username: name})
	}
	return app
}

func (a *testApp) do(method, path string, as uuid.UUID, body any) (int, envelope) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != uuid.Nil {
		token, err := a.jwt.GenerateAccessToken(as, "user")
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (a *testApp) ok(method, path string, as uuid.UUID, body any, want int, into any) {
	a.t.Helper()
	code, env := a.do(method, path, as, body)
	require.Equal(a.t, want, code, "%s %s: %s", method, path, string(env.Data))
	if into != nil {
		require.NoError(a.t, json.Unmarshal(env.Data, into))
	}
}

func (a *testApp) directConversation() uuid.UUID {
	a.t.Helper()
	var conv domain.ConversationSummary
	a.ok(http.MethodPost, "/v1/conversations", a.alice, map[string]any{
		"type":            "direct",
		"participant_ids": []uuid.UUID{a.bob},
	}, http.StatusCreated, &conv)
	return conv.ConversationID
}

func unread(t *testing.T, a *testApp, convID, user uuid.UUID) int {
	t.Helper()
	var out struct {
		UnreadCount int `json:"unread_count"`
	}
	a.ok(http.MethodGet, fmt.Sprintf("/v1/conversations/%s/unread", convID), user, nil, http.StatusOK, &out)
	return out.UnreadCount
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat-service")

	app.do(http.MethodGet, "/v1/conversations", app.alice, nil)

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouter_RequiresToken(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(http.MethodGet, "/v1/conversations", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestRouter_NonMemberIsForbidden(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	code, env := app.do(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/messages", convID), app.mallory,
		map[string]any{"message_type": "TEXT", "content": "let me in"})
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Empty(t, app.broker.Named(domain.EventNewMessage))
}

// Alice says hi, Bob has one unread message until he reads it.
func TestRouter_UnreadAndMarkRead(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	var msg domain.MessageResponse
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/messages", convID), app.alice,
		map[string]any{"message_type": "TEXT", "content": "hi"}, http.StatusCreated, &msg)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "hi", *msg.Content)

	assert.Equal(t, 1, unread(t, app, convID, app.bob))
	assert.Equal(t, 0, unread(t, app, convID, app.alice))

	var after struct {
		UnreadCount int `json:"unread_count"`
	}
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/read", convID), app.bob, nil, http.StatusOK, &after)
	assert.Equal(t, 0, after.UnreadCount)
	assert.Equal(t, 0, unread(t, app, convID, app.bob))

	assert.Len(t, app.broker.On(domain.ConversationChannel(convID)), 1)
	assert.Len(t, app.broker.On(domain.UserChannel(app.bob)), 1)

	var feed domain.NotificationPage
	app.ok(http.MethodGet, "/v1/notifications", app.bob, nil, http.StatusOK, &feed)
	assert.Equal(t, 1, feed.TotalCount)
	assert.Equal(t, 1, feed.UnreadCount)
}

// Red, then Blue, then Blue again on a single-choice poll.
func TestRouter_PollVoteBranches(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	var poll domain.PollDetails
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/polls", convID), app.alice, map[string]any{
		"question": "Color?",
		"options":  []string{"Red", "Blue"},
	}, http.StatusCreated, &poll)
	require.Len(t, poll.Results.Options, 2)
	red, blue := poll.Results.Options[0].OptionID, poll.Results.Options[1].OptionID

	type voteResult struct {
		Action  domain.VoteAction   `json:"action"`
		Results *domain.PollResults `json:"results"`
	}
	votesPath := fmt.Sprintf("/v1/polls/%s/votes", poll.PollID)

	var res voteResult
	app.ok(http.MethodPost, votesPath, app.bob, map[string]any{"option_id": red}, http.StatusOK, &res)
	assert.Equal(t, domain.VoteAdded, res.Action)
	assert.Equal(t, 1, res.Results.TotalVotes)
	assert.InDelta(t, 100.0, res.Results.Options[0].Percentage, 0.001)

	res = voteResult{}
	app.ok(http.MethodPost, votesPath, app.bob, map[string]any{"option_id": blue}, http.StatusOK, &res)
	assert.Equal(t, domain.VoteChanged, res.Action)
	assert.InDelta(t, 0.0, res.Results.Options[0].Percentage, 0.001)
	assert.InDelta(t, 100.0, res.Results.Options[1].Percentage, 0.001)

	res = voteResult{}
	app.ok(http.MethodPost, votesPath, app.bob, map[string]any{"option_id": blue}, http.StatusOK, &res)
	assert.Equal(t, domain.VoteRemoved, res.Action)
	assert.Equal(t, 0, res.Results.TotalVotes)

	assert.Len(t, app.broker.Named(domain.EventPollVoteUpdated), 3)
}

// Ringing, ongoing after Bob joins, ended after the last participant leaves.
func TestRouter_CallLifecycle(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	var details domain.CallDetails
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/calls", convID), app.alice,
		map[string]any{"call_type": "AUDIO"}, http.StatusCreated, &details)
	assert.Equal(t, domain.CallStatusRinging, details.Status)
	callID := details.CallID

	assert.Len(t, app.broker.Named(domain.EventIncomingCall), 1)

	details = domain.CallDetails{}
	app.ok(http.MethodPost, fmt.Sprintf("/v1/calls/%s/join", callID), app.bob, nil, http.StatusOK, &details)
	assert.Equal(t, domain.CallStatusOngoing, details.Status)
	assert.Len(t, app.broker.Named(domain.EventCallParticipantJoined), 1)

	var call domain.Call
	app.ok(http.MethodPost, fmt.Sprintf("/v1/calls/%s/leave", callID), app.alice, nil, http.StatusOK, &call)
	assert.Equal(t, domain.CallStatusOngoing, call.Status)
	assert.Nil(t, call.Duration)

	call = domain.Call{}
	app.ok(http.MethodPost, fmt.Sprintf("/v1/calls/%s/leave", callID), app.bob, nil, http.StatusOK, &call)
	assert.Equal(t, domain.CallStatusEnded, call.Status)
	require.NotNil(t, call.Duration)
	require.NotNil(t, call.EndedAt)
	assert.GreaterOrEqual(t, *call.Duration, 0)
	assert.Len(t, app.broker.Named(domain.EventCallEnded), 1)

	code, _ := app.do(http.MethodPost, fmt.Sprintf("/v1/calls/%s/join", callID), app.bob, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// Two playback updates back to back: the second one is what is stored.
func TestRouter_WatchLastWriterWins(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	var session domain.WatchSession
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/watch", convID), app.alice,
		map[string]any{"media_url": "https://media.example/movie.mp4"}, http.StatusCreated, &session)
	assert.Equal(t, 0.0, session.CurrentPosition)
	assert.True(t, session.IsPlaying)

	playback := fmt.Sprintf("/v1/watch/%s/playback", session.SessionID)
	app.ok(http.MethodPut, playback, app.alice, map[string]any{"current_position": 42, "is_playing": false}, http.StatusOK, nil)
	app.ok(http.MethodPut, playback, app.bob, map[string]any{"current_position": 50, "is_playing": true}, http.StatusOK, nil)

	var stored domain.WatchSession
	app.ok(http.MethodGet, fmt.Sprintf("/v1/watch/%s", session.SessionID), app.alice, nil, http.StatusOK, &stored)
	assert.Equal(t, 50.0, stored.CurrentPosition)
	assert.True(t, stored.IsPlaying)
	assert.Equal(t, app.bob, stored.UpdatedBy)
}

func TestRouter_ReactionToggle(t *testing.T) {
	app := newTestApp(t)
	convID := app.directConversation()

	var msg domain.MessageResponse
	app.ok(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/messages", convID), app.alice,
		map[string]any{"message_type": "TEXT", "content": "react to me"}, http.StatusCreated, &msg)

	path := fmt.Sprintf("/v1/messages/%s/reactions", msg.MessageID)
	app.ok(http.MethodPost, path, app.bob, map[string]any{"emoji": "👍"}, http.StatusOK, nil)

	var list struct {
		Reactions []domain.ReactionSummary `json:"reactions"`
	}
	app.ok(http.MethodGet, path, app.alice, nil, http.StatusOK, &list)
	require.Len(t, list.Reactions, 1)
	assert.Equal(t, 1, list.Reactions[0].Count)

	app.ok(http.MethodPost, path, app.bob, map[string]any{"emoji": "👍"}, http.StatusOK, nil)
	list.Reactions = nil
	app.ok(http.MethodGet, path, app.alice, nil, http.StatusOK, &list)
	assert.Empty(t, list.Reactions)

	assert.Len(t, app.broker.Named(domain.EventReactionAdded), 2)
	assert.Len(t, app.broker.Named(domain.EventReactionRemoved), 2)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/generation"
	"github.com/ashureev/phishcoach/internal/interaction"
	"github.com/ashureev/phishcoach/internal/llm/llmtest"
	"github.com/ashureev/phishcoach/internal/prompt"
	"github.com/ashureev/phishcoach/internal/session"
)

type fixedSources struct{ n int }

func (f fixedSources) Samples() []domain.SampleMessage {
	out := make([]domain.SampleMessage, f.n)
	for i := range out {
		analysis := fmt.Sprintf("analysis %d", i)
		out[i] = domain.SampleMessage{
			ID:         i,
			Subject:    fmt.Sprintf("S%d", i),
			Sender:     "x@y",
			Content:    "c",
			IsPhishing: i%2 == 0,
			Analysis:   &analysis,
		}
	}
	return out
}

func (fixedSources) Context() domain.GenerationContext { return domain.NewGenerationContext() }

type memScoreboard struct {
	mu        sync.Mutex
	judgments []domain.Judgment
}

func (m *memScoreboard) RecordJudgment(_ context.Context, j domain.Judgment) (domain.Judgment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.ID = int64(len(m.judgments) + 1)
	m.judgments = append(m.judgments, j)
	return j, nil
}

func (m *memScoreboard) Score(context.Context) (domain.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.Score
	for _, j := range m.judgments {
		s.Add(j.Outcome)
	}
	return s, nil
}

func (m *memScoreboard) ListJudgments(_ context.Context, limit int) ([]domain.Judgment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Judgment
	for i := len(m.judgments) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.judgments[i])
	}
	return out, nil
}

type testServer struct {
	router http.Handler
	stub   *llmtest.Stub
	scores *memScoreboard
	sess   *session.Session
}

func newTestServer(t *testing.T, samples int) *testServer {
	t.Helper()
	tmpl, err := prompt.New(map[string]string{
		prompt.ConversationTrainingContext:            "training|{{ .query }}",
		prompt.ConversationPhishingContextWithMessage: "about|{{ .subject }}|{{ .query }}",
		prompt.CoachingTruePositive:                   "tp|{{ .subject }}|{{ .analysis }}",
		prompt.CoachingFalsePositive:                  "fp|{{ .subject }}|{{ .analysis }}",
		prompt.CoachingFalseNegative:                  "fn|{{ .subject }}|{{ .analysis }}",
		prompt.CoachingTrueNegative:                   "tn|{{ .subject }}|{{ .analysis }}",
		prompt.MessageGenerationPhishing:              "gen|{{ .subject }}",
		prompt.MessageGenerationNoPhishing:            "gen|{{ .subject }}",
	})
	require.NoError(t, err)

	stub := &llmtest.Stub{Respond: func(p string) (string, error) {
		if subject, ok := strings.CutPrefix(p, "gen|"); ok {
			return fmt.Sprintf(`{"subject": %q, "sender": "it@corp.test", "content": "Hello  there"}`, subject), nil
		}
		return "reply to " + p, nil
	}}

	scores := &memScoreboard{}
	ctrl := interaction.NewController(tmpl, stub, nil, nil)
	gen := generation.New(fixedSources{n: samples}, tmpl, stub, generation.Options{NormalizeHTML: true})
	sess := session.New(ctrl, gen, session.Options{
		EnvironmentID: "e3",
		UserID:        "u3",
		BatchSize:     1,
		Journal:       scores,
	})

	ui := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>trainer</html>"))
	})

	r := chi.NewRouter()
	NewTrainingHandler(sess, scores, ui, nil).RegisterRoutes(r)
	return &testServer{router: r, stub: stub, scores: scores, sess: sess}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type messagesBody struct {
	Messages  []domain.GeneratedMessage `json:"messages"`
	Completed bool                      `json:"generation_completed"`
}

func (s *testServer) pollAll(t *testing.T) []domain.GeneratedMessage {
	t.Helper()
	var all []domain.GeneratedMessage
	for i := 0; i < 50; i++ {
		rec := s.do(t, http.MethodGet, "/messages/get", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[messagesBody](t, rec)
		if body.Completed {
			return all
		}
		all = append(all, body.Messages...)
	}
	t.Fatal("generation never completed")
	return nil
}

func TestIndexStartsGeneration(t *testing.T) {
	s := newTestServer(t, 2)

	rec := s.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trainer")
	assert.Equal(t, interaction.Generating, s.sess.State())
}

func TestGetMessagesUntilCompleted(t *testing.T) {
	s := newTestServer(t, 3)
	s.do(t, http.MethodGet, "/", "")

	msgs := s.pollAll(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hello&nbsp;&nbsp;there", msgs[0].Content)
	assert.Equal(t, interaction.Engaged, s.sess.State())

	rec := s.do(t, http.MethodGet, "/messages/get", "")
	body := decode[messagesBody](t, rec)
	assert.True(t, body.Completed)
	assert.Len(t, body.Messages, 3)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestGetMessagesModelFailureRetriesSlot(t *testing.T) {
	s := newTestServer(t, 2)
	s.do(t, http.MethodGet, "/", "")
	reply := s.stub.Respond
	failed := false
	s.stub.Respond = func(p string) (string, error) {
		if !failed {
			failed = true
			return "", errors.New("upstream timeout")
		}
		return reply(p)
	}

	rec := s.do(t, http.MethodGet, "/messages/get", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	msgs := s.pollAll(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].ID)
	assert.Equal(t, 1, msgs[1].ID)
}

func TestQueryWhileGenerating(t *testing.T) {
	s := newTestServer(t, 2)
	s.do(t, http.MethodGet, "/", "")

	rec := s.do(t, http.MethodPost, "/query", `{"user_query": "ready?", "email_id": 0}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, interaction.WaitingText, decode[map[string]string](t, rec)["response"])

	rec = s.do(t, http.MethodPost, "/messages/flag", `{"message_id": 0, "is_phishing": true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, interaction.WaitingText, decode[map[string]string](t, rec)["response"])
	assert.Empty(t, s.scores.judgments)
}

func TestFlagAndScore(t *testing.T) {
	s := newTestServer(t, 2)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)

	rec := s.do(t, http.MethodPost, "/messages/flag", `{"message_id": "0", "is_phishing": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "reply to tp|S0|analysis 0", body["response"])
	assert.Equal(t, "true_positive", body["outcome"])
	assert.Equal(t, interaction.Coaching, s.sess.State())

	rec = s.do(t, http.MethodPost, "/messages/flag", `{"message_id": 1, "is_phishing": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reply to fp|S1|analysis 1", decode[map[string]string](t, rec)["response"])

	rec = s.do(t, http.MethodGet, "/api/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"score": {"true_positive": 1, "false_positive": 1, "false_negative": 0, "true_negative": 0},
		"total": 2,
		"correct": 1
	}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/judgments?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	judgments := decode[map[string][]domain.Judgment](t, rec)["judgments"]
	require.Len(t, judgments, 1)
	assert.Equal(t, 1, judgments[0].MessageID)
}

func TestFlagValidation(t *testing.T) {
	s := newTestServer(t, 1)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/messages/flag", `{"is_phishing": true}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/messages/flag", `not json`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/messages/flag", `{"message_id": 9, "is_phishing": true}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/judgments?limit=x", "").Code)
}

func TestQueryAboutMessage(t *testing.T) {
	s := newTestServer(t, 2)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)

	rec := s.do(t, http.MethodPost, "/query", `{"user_query": "legit?", "email_id": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reply to about|S1|legit?", decode[map[string]string](t, rec)["response"])

	rec = s.do(t, http.MethodPost, "/query", `{"user_query": "what is spear phishing?", "email_id": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reply to training|what is spear phishing?", decode[map[string]string](t, rec)["response"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/query", `{"user_query": ""}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/query", `{"user_query": "?", "email_id": 7}`).Code)
}

func TestQueryCoachingWithoutMessage(t *testing.T) {
	s := newTestServer(t, 1)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)
	s.do(t, http.MethodPost, "/messages/flag", `{"message_id": 0, "is_phishing": false}`)

	rec := s.do(t, http.MethodPost, "/query", `{"user_query": "why?"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryModelFailure(t *testing.T) {
	s := newTestServer(t, 1)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)
	s.stub.Respond = func(string) (string, error) { return "", errors.New("upstream timeout") }

	rec := s.do(t, http.MethodPost, "/query", `{"user_query": "hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, UnavailableText, body["response"])
	assert.Contains(t, body["error"], "upstream timeout")
}

func TestShowReturnsToEngaged(t *testing.T) {
	s := newTestServer(t, 1)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)
	s.do(t, http.MethodPost, "/messages/flag", `{"message_id": 0, "is_phishing": true}`)
	require.Equal(t, interaction.Coaching, s.sess.State())

	rec := s.do(t, http.MethodPost, "/messages/show", `{"email_id": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response": ""}`, rec.Body.String())
	assert.Equal(t, interaction.Engaged, s.sess.State())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/messages/show", `{"email_id": 4}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/messages/show", `{}`).Code)
}

func TestResetAndState(t *testing.T) {
	s := newTestServer(t, 2)
	s.do(t, http.MethodGet, "/", "")
	s.pollAll(t)

	rec := s.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"ENGAGED","cursor":2,"accumulated":2,"total_prompts":2,"exhausted":true,"content_html":true}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/messages/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"ENGAGED","cursor":0,"accumulated":0,"total_prompts":2,"exhausted":false,"content_html":true}`, rec.Body.String())
}

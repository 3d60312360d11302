package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanakya-ai/chanakya/pkg/config"
	"github.com/chanakya-ai/chanakya/pkg/feedback"
	"github.com/chanakya-ai/chanakya/pkg/memory"
	"github.com/chanakya-ai/chanakya/pkg/model/modeltest"
	"github.com/chanakya-ai/chanakya/pkg/orchestrator"
	"github.com/chanakya-ai/chanakya/pkg/quality"
	"github.com/chanakya-ai/chanakya/pkg/rag"
	"github.com/chanakya-ai/chanakya/pkg/server"
	"github.com/chanakya-ai/chanakya/pkg/tools"
)

const activityJSON = `{
	"name": "Stone Counting",
	"description": "Count stones in pairs.",
	"materials": ["stones"],
	"steps": ["Collect stones", "Count in pairs"],
	"duration_minutes": 15,
	"learning_outcome": "Addition with objects"
}`

const routeJSON = `{"selected_tool": "activity_generator", "reason": "matched", "extracted_topic": "addition", "confidence": 0.9}`

const verdictJSON = `{"overall_score": 0.9, "verdict": "accept"}`

func newEngine(t *testing.T) *orchestrator.Engine {
	t.Helper()

	store, err := memory.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	toolLLM := &modeltest.StubLLM{Responses: []string{activityJSON}}
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.ActivityGeneratorName, tools.NewActivityGenerator(toolLLM)))
	require.NoError(t, reg.Register(tools.CrisisHandlerName, tools.NewCrisisHandler(toolLLM)))
	require.NoError(t, reg.Register(tools.TeacherMotivationName, tools.NewTeacherMotivation(toolLLM)))

	return orchestrator.New(
		&modeltest.StubLLM{Responses: []string{routeJSON}},
		memory.NewService(store, nil, memory.Config{}),
		reg,
		quality.NewGate(&modeltest.StubLLM{Responses: []string{verdictJSON}}, 0.7, time.Second),
		nil,
		config.EngineConfig{})
}

func newTestServer(t *testing.T, opts ...server.Option) *httptest.Server {
	t.Helper()
	srv := server.New(config.ServerConfig{}, newEngine(t), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProcess(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/process", orchestrator.Utterance{
		Text:      "activity for teaching addition",
		SessionID: "s1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out orchestrator.Response
	decodeBody(t, resp, &out)
	assert.Equal(t, tools.ActivityGeneratorName, out.ToolUsed)
	require.NotNil(t, out.Result)
	assert.Equal(t, "Stone Counting", out.Result.Activity.Name)
}

func TestProcessRejectsEmptyText(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/process", orchestrator.Utterance{Text: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/v1/process", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessStream(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/process/stream", orchestrator.Utterance{
		Text:      "activity for teaching addition",
		SessionID: "s1",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []orchestrator.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event orchestrator.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, orchestrator.EventFinal, last.Type)
	require.NotNil(t, last.Response)
	assert.Equal(t, tools.ActivityGeneratorName, last.Response.ToolUsed)
}

func TestContextLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/context/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	postJSON(t, ts.URL+"/v1/process", orchestrator.Utterance{
		Text:      "activity for teaching addition",
		SessionID: "s-ctx",
	}).Body.Close()

	resp, err = http.Get(ts.URL + "/v1/context/s-ctx")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot memory.Snapshot
	decodeBody(t, resp, &snapshot)
	assert.Equal(t, "s-ctx", snapshot.ID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/context/s-ctx", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var cleared map[string]bool
	decodeBody(t, resp, &cleared)
	assert.True(t, cleared["cleared"])
}

func TestQueryUnconfigured(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/query", map[string]string{"question": "what is soil"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type fixedEmbedder struct{ vec []float32 }

func (f *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int    { return len(f.vec) }
func (f *fixedEmbedder) ModelName() string { return "fixed" }
func (f *fixedEmbedder) Close() error      { return nil }

func TestQuery(t *testing.T) {
	corpus, err := rag.NewStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { corpus.Close() })

	_, err = corpus.Append(context.Background(), "Soil is the top layer of land.",
		[]float32{1, 0}, rag.Source{Class: "5", Subject: "Science", Book: "EVS", Language: "en", Page: "7"})
	require.NoError(t, err)

	answers := rag.NewEngine(corpus, &fixedEmbedder{vec: []float32{1, 0}},
		&modeltest.StubLLM{Responses: []string{"Soil is the top layer of land."}}, rag.Config{})

	ts := newTestServer(t, server.WithRetrieval(answers))
	resp := postJSON(t, ts.URL+"/v1/query", map[string]string{"question": "what is soil", "class": "5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer rag.Answer
	decodeBody(t, resp, &answer)
	assert.Contains(t, answer.Text, "Soil")
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "7", answer.Sources[0].Page)
}

func TestQueryRequiresQuestion(t *testing.T) {
	ts := newTestServer(t, server.WithRetrieval(&rag.Engine{}))
	resp := postJSON(t, ts.URL+"/v1/query", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

const scorecardJSON = `{"overall_score": 0.8, "key_strengths": ["clear examples"], "language_level": "appropriate"}`

func feedbackFixture(t *testing.T) (*feedback.Analyzer, *feedback.Store) {
	t.Helper()
	store, err := feedback.NewStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	analyzer := feedback.NewAnalyzer(&modeltest.StubLLM{Responses: []string{scorecardJSON}}, store, 0)
	return analyzer, store
}

func TestFeedbackUnconfigured(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/feedback", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFeedbackRoundTrip(t *testing.T) {
	analyzer, store := feedbackFixture(t)
	ts := newTestServer(t, server.WithFeedback(analyzer, store))

	session := feedback.Session{
		Transcript: strings.Repeat("Today we learned about fractions with rotis. ", 3),
		Topic:      "fractions",
		GradeLevel: "5",
		TeacherID:  "teacher-1",
	}
	resp := postJSON(t, ts.URL+"/v1/feedback", session)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card feedback.Scorecard
	decodeBody(t, resp, &card)
	assert.InDelta(t, 0.8, card.OverallScore, 1e-9)
	require.NotEmpty(t, card.SessionID)

	resp, err := http.Get(ts.URL + "/v1/feedback/" + card.SessionID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored feedback.Scorecard
	decodeBody(t, resp, &stored)
	assert.Equal(t, card.SessionID, stored.SessionID)

	resp, err = http.Get(ts.URL + "/v1/feedback/teacher/teacher-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history feedback.History
	decodeBody(t, resp, &history)
	assert.Equal(t, 1, history.TotalSessions)
}

func TestFeedbackRejectsShortTranscript(t *testing.T) {
	analyzer, store := feedbackFixture(t)
	ts := newTestServer(t, server.WithFeedback(analyzer, store))

	resp := postJSON(t, ts.URL+"/v1/feedback", feedback.Session{
		Transcript: "too short",
		Topic:      "fractions",
		GradeLevel: "5",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedbackNotFound(t *testing.T) {
	analyzer, store := feedbackFixture(t)
	ts := newTestServer(t, server.WithFeedback(analyzer, store))

	resp, err := http.Get(ts.URL + "/v1/feedback/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

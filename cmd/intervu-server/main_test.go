package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/intervu-client/internal/testutil"
	"github.com/Sternrassler/intervu-client/pkg/ratelimit"
	"github.com/Sternrassler/intervu-client/pkg/spa"
)

const questionsData = `{"intervuQuestions":[
	{"id":"q1","title":"What is a goroutine?","createdAt":"2024-01-02T10:00:00Z",
	 "category":{"id":"c1","name":"Go"},
	 "answers":[{"id":"a1","content":"A lightweight thread","createdAt":"2024-01-02T11:00:00Z"}]},
	{"id":"q2","title":"What is a channel?","createdAt":"2024-01-03T10:00:00Z","answers":[]}
]}`

// noEnv hides the process environment from the command under test.
func noEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func execute(t *testing.T, env map[string]string, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(noEnv(env))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type fakeReadiness struct {
	pingErr error
	state   *ratelimit.State
}

func (f fakeReadiness) Ping(context.Context) error { return f.pingErr }

func (f fakeReadiness) RateLimitState(context.Context) (*ratelimit.State, error) {
	return f.state, nil
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		handler := readyHandler(fakeReadiness{state: &ratelimit.State{Remaining: 42}}, zerolog.Nop())

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}

		var body readyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Status != "ok" {
			t.Errorf("Expected status ok, got %q", body.Status)
		}
		if body.RateLimit == nil || body.RateLimit.Remaining != 42 {
			t.Errorf("Expected rate limit remaining 42, got %+v", body.RateLimit)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		handler := readyHandler(fakeReadiness{pingErr: errors.New("connection refused")}, zerolog.Nop())

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "connection refused") {
			t.Errorf("Expected error in body, got %s", w.Body.String())
		}
	})
}

func TestMux(t *testing.T) {
	site := spa.NewHandler(fstest.MapFS{
		"index.html":    {Data: []byte("<html>app</html>")},
		"assets/app.js": {Data: []byte("run()")},
	}, "/intervu/", zerolog.Nop())
	mux := newMux(site, fakeReadiness{}, zerolog.Nop())

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, "OK"},
		{"/ready", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "# TYPE"},
		{"/intervu/assets/app.js", http.StatusOK, "run()"},
		{"/intervu/editer", http.StatusOK, "<html>app</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("Expected body to contain %q, got %q", tt.contains, w.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.SetResponse("IntervuCategories", testutil.NewDataResponse(`{"intervuCategories":[]}`))

	// One request through the stack so the labelled metrics have samples.
	if _, err := execute(t, nil, "", "categories", "--api-url", mock.URL()+"/api"); err != nil {
		t.Fatalf("categories: %v", err)
	}

	w := httptest.NewRecorder()
	newMux(http.NotFoundHandler(), fakeReadiness{}, zerolog.Nop()).
		ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{
		"intervu_graphql_requests_total",
		"intervu_cache_misses_total",
		"intervu_upstream_rate_limit_remaining",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestQuestionsCmd(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.SetResponse("IntervuQuestions", testutil.NewDataResponse(questionsData))
	apiURL := mock.URL() + "/api"

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, nil, "", "questions", "--api-url", apiURL, "--search", "what")
		if err != nil {
			t.Fatalf("questions: %v", err)
		}
		for _, want := range []string{"ID", "q1", "Go", "What is a goroutine?", "q2", "-"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected output to contain %q:\n%s", want, out)
			}
		}

		reqs := mock.RequestsFor("IntervuQuestions")
		if len(reqs) == 0 || reqs[len(reqs)-1].Variables["search"] != "what" {
			t.Errorf("Expected search variable to be sent, got %+v", reqs)
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, nil, "", "questions", "--api-url", apiURL, "--json")
		if err != nil {
			t.Fatalf("questions: %v", err)
		}

		var questions []struct {
			ID      string `json:"id"`
			Answers []struct {
				Content    string `json:"content"`
				QuestionID string `json:"questionId"`
			} `json:"answers"`
		}
		if err := json.Unmarshal([]byte(out), &questions); err != nil {
			t.Fatalf("decode output: %v\n%s", err, out)
		}
		if len(questions) != 2 {
			t.Fatalf("Expected 2 questions, got %d", len(questions))
		}
		if questions[0].Answers[0].QuestionID != "q1" {
			t.Errorf("Expected answer to reference q1, got %q", questions[0].Answers[0].QuestionID)
		}
	})
}

func TestQuestionsCmd_All(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()

	// Five questions served two per page.
	mock.SetHandler("IntervuQuestions", func(w http.ResponseWriter, _ *http.Request, req testutil.GraphQLRequest) {
		skip, _ := req.Variables["skip"].(float64)
		take, _ := req.Variables["take"].(float64)

		var items []string
		for i := int(skip); i < int(skip+take) && i < 5; i++ {
			items = append(items, fmt.Sprintf(`{"id":"q%d","title":"Question %d","answers":[]}`, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"intervuQuestions":[%s]}}`, strings.Join(items, ","))
	})

	out, err := execute(t, nil, "", "questions", "--api-url", mock.URL()+"/api", "--all", "--take", "2", "--workers", "2", "--json")
	if err != nil {
		t.Fatalf("questions --all: %v", err)
	}

	var questions []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &questions); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(questions) != 5 {
		t.Fatalf("Expected 5 questions, got %d", len(questions))
	}
	for i, q := range questions {
		if q.ID != fmt.Sprintf("q%d", i) {
			t.Errorf("questions[%d] = %s, want q%d", i, q.ID, i)
		}
	}
}

func TestCategoriesCmd(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.SetResponse("IntervuCategories", testutil.NewDataResponse(`{"intervuCategories":[{"id":"c1","name":"Go"},{"id":"c2","name":"SQL"}]}`))

	out, err := execute(t, map[string]string{"API_URL": mock.URL() + "/api"}, "", "categories")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	for _, want := range []string{"NAME", "c1", "Go", "c2", "SQL"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}

	if ua := mock.LastRequestHeader().Get("User-Agent"); !strings.HasPrefix(ua, "intervu-client/") {
		t.Errorf("Expected default user agent, got %q", ua)
	}
}

func TestCategoriesCmd_UpstreamError(t *testing.T) {
	mock := testutil.NewMockGraphQL()
	defer mock.Close()
	mock.SetResponse("IntervuCategories", testutil.NewErrorsResponse("boom", "INTERNAL"))

	_, err := execute(t, nil, "", "categories", "--api-url", mock.URL()+"/api")
	if err == nil || !strings.Contains(err.Error(), "fetch categories") {
		t.Errorf("Expected fetch categories error, got %v", err)
	}
}

func TestRenderCmd(t *testing.T) {
	out, err := execute(t, nil, "**bold** answer", "render")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Errorf("Expected rendered HTML, got %q", out)
	}

	out, err = execute(t, nil, "", "render", "--css")
	if err != nil {
		t.Fatalf("render --css: %v", err)
	}
	if !strings.Contains(out, ".chroma") {
		t.Errorf("Expected stylesheet, got %q", out)
	}

	if _, err := execute(t, nil, "", "render", "does-not-exist.md"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad port env", map[string]string{"PORT": "abc"}, []string{"render", "--css"}},
		{"bad log level flag", nil, []string{"render", "--css", "--log-level", "loud"}},
		{"bad port flag", nil, []string{"serve", "--port", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.env, "", tt.args...); err == nil {
				t.Error("Expected configuration error")
			}
		})
	}
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- helpers ---

func backendServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *HTTPClient {
	t.Helper()
	return NewHTTPClient(baseURL, StaticToken("secret-token"), 5*time.Second, opts...)
}

// --- CreateSearchQuery ---

func TestCreateSearchQuery_SendsBodyAndToken(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/searchqueries/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token secret-token" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["query"] != "election" {
			t.Errorf("unexpected query: %v", body["query"])
		}
		if body["search_type"] != "social" {
			t.Errorf("unexpected search_type: %v", body["search_type"])
		}
		if body["status"] != "pending" {
			t.Errorf("unexpected status: %v", body["status"])
		}
		params, _ := body["parameters"].(map[string]any)
		if params["maxItems"] != float64(25) || params["sort"] != "Top" {
			t.Errorf("unexpected parameters: %v", params)
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 42, "query": "election", "status": "pending"}`))
	})

	c := newTestClient(t, ts.URL)
	id, err := c.CreateSearchQuery(context.Background(), "election", 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" {
		t.Errorf("expected id 42, got %q", id)
	}
}

func TestCreateSearchQuery_MissingIDReturnsEmpty(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "pending"}`))
	})

	c := newTestClient(t, ts.URL)
	id, err := c.CreateSearchQuery(context.Background(), "x", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestCreateSearchQuery_NoTokenNoHeader(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("expected no Authorization header")
		}
		w.Write([]byte(`{"id": "7"}`))
	})

	c := NewHTTPClient(ts.URL, nil, 0)
	if _, err := c.CreateSearchQuery(context.Background(), "x", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSearchQuery_CredentialsReadPerRequest(t *testing.T) {
	var seen []string
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte(`{"id": "1"}`))
	})

	token := "first"
	c := NewHTTPClient(ts.URL, CredentialFunc(func(_ context.Context) (string, error) {
		return token, nil
	}), 0)

	c.CreateSearchQuery(context.Background(), "a", 1)
	token = "second"
	c.CreateSearchQuery(context.Background(), "b", 1)

	if len(seen) != 2 || seen[0] != "Token first" || seen[1] != "Token second" {
		t.Errorf("unexpected headers: %v", seen)
	}
}

func TestCreateSearchQuery_CredentialError(t *testing.T) {
	called := false
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	c := NewHTTPClient(ts.URL, CredentialFunc(func(_ context.Context) (string, error) {
		return "", errors.New("store locked")
	}), 0)

	_, err := c.CreateSearchQuery(context.Background(), "a", 1)
	if !errors.Is(err, ErrCredentialsUnavailable) {
		t.Errorf("expected ErrCredentialsUnavailable, got: %v", err)
	}
	if !IsTransportFailure(err) {
		t.Errorf("expected transport failure classification")
	}
	if called {
		t.Errorf("request should not be sent without credentials")
	}
}

// --- trigger calls ---

func TestTriggerCalls_Paths(t *testing.T) {
	var paths []string
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"status": "collecting"}`))
	})

	c := newTestClient(t, ts.URL)
	if err := c.StartCollection(context.Background(), "42"); err != nil {
		t.Fatalf("start collection: %v", err)
	}
	if err := c.CollectPosts(context.Background(), "42"); err != nil {
		t.Fatalf("collect posts: %v", err)
	}

	want := []string{"/searchqueries/42/start_collection/", "/searchqueries/42/collect_tweets/"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("unexpected paths: %v", paths)
	}
}

func TestTriggerCall_ErrorStatus(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, ts.URL)
	err := c.StartCollection(context.Background(), "42")
	if !errors.Is(err, ErrBackendStatus) {
		t.Errorf("expected ErrBackendStatus, got: %v", err)
	}
}

// --- GetSearchQuery ---

func TestGetSearchQuery_Status(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/searchqueries/42/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id": 42, "status": "completed"}`))
	})

	c := newTestClient(t, ts.URL)
	q, err := c.GetSearchQuery(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Status != StatusCompleted {
		t.Errorf("expected completed, got %q", q.Status)
	}
}

func TestGetSearchQuery_MalformedJSON(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	c := newTestClient(t, ts.URL)
	_, err := c.GetSearchQuery(context.Background(), "42")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got: %v", err)
	}
}

// --- AnalyzePosts ---

func TestAnalyzePosts_LenientPayload(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/searchqueries/42/analyze_tweets/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"sentiment_counts": {"positive": "2", "negative": 1},
			"themes": "Turnout and fraud claims",
			"expert_insights": ["one", 2, "two"],
			"detailed_analysis": [{"text": "a"}, 17, {"text": "b"}],
			"percentages": {"positive": "66.7", "negative": 33.3, "neutral": null},
			"created_at": "2024-03-01T10:00:00Z",
			"status": 200
		}`))
	})

	c := newTestClient(t, ts.URL)
	a, err := c.AnalyzePosts(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.SentimentCounts["positive"] != 2 || a.SentimentCounts["negative"] != 1 {
		t.Errorf("unexpected counts: %v", a.SentimentCounts)
	}
	if len(a.Themes) != 1 || a.Themes[0] != "Turnout and fraud claims" {
		t.Errorf("unexpected themes: %v", a.Themes)
	}
	if len(a.ExpertInsights) != 2 {
		t.Errorf("expected non-string insight dropped, got %v", a.ExpertInsights)
	}
	if len(a.DetailedAnalysis) != 3 {
		t.Errorf("expected 3 raw records, got %d", len(a.DetailedAnalysis))
	}
	if a.Percentages["positive"] != 66.7 {
		t.Errorf("unexpected percentages: %v", a.Percentages)
	}
	if a.Status != "200" {
		t.Errorf("unexpected status: %q", a.Status)
	}
}

func TestAnalyzePosts_WrongFieldShapesAreIgnored(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sentiment_counts": "n/a", "detailed_analysis": {"oops": true}, "themes": 5}`))
	})

	c := newTestClient(t, ts.URL)
	a, err := c.AnalyzePosts(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.SentimentCounts != nil || a.DetailedAnalysis != nil || a.Themes != nil {
		t.Errorf("expected zero values, got %+v", a)
	}
}

// --- stored read path ---

func TestListPosts_ArrayAndPaginated(t *testing.T) {
	for name, body := range map[string]string{
		"array":     `[{"text": "a"}, {"text": "b"}]`,
		"paginated": `{"count": 2, "next": null, "results": [{"text": "a"}, {"text": "b"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/tweets/" || r.URL.Query().Get("search_query") != "42" {
					t.Errorf("unexpected request: %s", r.URL.String())
				}
				w.Write([]byte(body))
			})

			c := newTestClient(t, ts.URL)
			items, err := c.ListPosts(context.Background(), "42")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(items) != 2 {
				t.Errorf("expected 2 items, got %d", len(items))
			}
		})
	}
}

func TestListAnalyses(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis/" || r.URL.Query().Get("search_query") != "42" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		w.Write([]byte(`[{"status": "completed", "themes": ["x"]}, "garbage"]`))
	})

	c := newTestClient(t, ts.URL)
	analyses, err := c.ListAnalyses(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analyses) != 1 || analyses[0].Status != "completed" {
		t.Errorf("unexpected analyses: %+v", analyses)
	}
}

// --- Suggestions ---

func TestSuggestions_Success(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "ele" {
			t.Errorf("unexpected q: %s", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`{"suggestions": ["election", "electric cars"]}`))
	})

	notified := false
	c := newTestClient(t, ts.URL, WithFallbackNotifier(func(string, error) { notified = true }))
	got := c.Suggestions(context.Background(), "ele")
	if len(got) != 2 || got[0] != "election" {
		t.Errorf("unexpected suggestions: %v", got)
	}
	if notified {
		t.Errorf("notifier should not fire on success")
	}
}

func TestSuggestions_FallbackOnFailure(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var notifiedOp string
	var notifiedErr error
	c := newTestClient(t, ts.URL,
		WithFallbackSuggestions([]string{"football", "finance", "climate"}),
		WithFallbackNotifier(func(op string, err error) {
			notifiedOp = op
			notifiedErr = err
		}),
	)

	got := c.Suggestions(context.Background(), "f")
	if len(got) != 2 || got[0] != "football" || got[1] != "finance" {
		t.Errorf("unexpected fallback: %v", got)
	}
	if notifiedOp != "suggestions" || !errors.Is(notifiedErr, ErrBackendStatus) {
		t.Errorf("unexpected notification: %s %v", notifiedOp, notifiedErr)
	}
}

func TestSuggestions_FallbackWhenEmpty(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	c := newTestClient(t, ts.URL, WithFallbackSuggestions([]string{"climate"}))
	got := c.Suggestions(context.Background(), "zzz")
	if len(got) != 1 || got[0] != "climate" {
		t.Errorf("expected full fallback list when nothing matches, got %v", got)
	}
}

// --- error classification ---

func TestUnreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.GetSearchQuery(context.Background(), "42")
	if !errors.Is(err, ErrBackendUnreachable) {
		t.Errorf("expected ErrBackendUnreachable, got: %v", err)
	}
}

func TestContextTimeout(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := newTestClient(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetSearchQuery(ctx, "42")
	if !errors.Is(err, ErrBackendTimeout) {
		t.Errorf("expected ErrBackendTimeout, got: %v", err)
	}
}

func TestReady(t *testing.T) {
	ts := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	if err := newTestClient(t, ts.URL).Ready(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	down := backendServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := newTestClient(t, down.URL).Ready(context.Background()); !errors.Is(err, ErrBackendUnreachable) {
		t.Errorf("expected ErrBackendUnreachable, got: %v", err)
	}
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"customer-map/config"
	"customer-map/models"
	"customer-map/utils"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		ArkAPIKey:     "ark-key",
		ArkEndpointID: "ep-123",
		ArkBaseURL:    baseURL,
	}
}

func sampleRequest() SummaryRequest {
	return SummaryRequest{
		Stats: &models.StatsReport{
			Total:       12,
			TotalVolume: 55,
			ByBrand:     []models.CountEntry{{Name: "长城", Count: 7}, {Name: "张裕", Count: 5}},
			ByRegion:    []models.CountEntry{{Name: "河南", Count: 9}},
		},
		Filters:     models.FilterState{RegionFilter: []string{"河南"}},
		SearchQuery: "解百纳",
	}
}

func TestSummarizeRequiresCredentials(t *testing.T) {
	s := New(&config.Config{}, utils.NewLogger(false))
	_, err := s.Summarize(context.Background(), sampleRequest())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured before any network call, got %v", err)
	}
}

func TestSummarizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ark-key" {
			t.Errorf("auth header: got %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"总结文本"}}]}`)
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), utils.NewLogger(false))
	summary, err := s.Summarize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "总结文本" {
		t.Errorf("summary: got %q", summary)
	}
}

func TestSummarizeEmptyContentIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`)
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), utils.NewLogger(false))
	if _, err := s.Summarize(context.Background(), sampleRequest()); err == nil {
		t.Fatal("empty completion content must be an error")
	}
}

func TestSummarizeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), utils.NewLogger(false))
	_, err := s.Summarize(context.Background(), sampleRequest())
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
}

func TestSummarizeCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"choices":[{"message":{"content":"too late"}}]}`)
	}))
	defer srv.Close()
	defer close(release)

	s := New(testConfig(srv.URL), utils.NewLogger(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Summarize(ctx, sampleRequest())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled call must surface context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled call did not return")
	}
}

func TestSummarizeSupersedesInFlightCall(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	first := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(first)
			// Drain the body so the server starts its background read and
			// can observe the client disconnect via the request context.
			io.Copy(io.Discard, r.Body)
			// Block until the client cancels this request.
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"第二次"}}]}`)
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), utils.NewLogger(false))

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Summarize(context.Background(), sampleRequest())
		firstErr <- err
	}()

	<-first
	summary, err := s.Summarize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if summary != "第二次" {
		t.Errorf("second call summary: got %q", summary)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("superseded call must resolve as context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded call never returned")
	}
}

func TestBuildPromptIncludesStatsAndFilters(t *testing.T) {
	prompt := BuildPrompt(sampleRequest())

	for _, want := range []string{"12", "长城 7 家", "河南", "解百纳"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

package automation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
)

type memoryUpserter struct {
	tools []*models.Tool
	err   error
}

func (m *memoryUpserter) Upsert(_ context.Context, tool *models.Tool) (*models.Tool, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tools = append(m.tools, tool)
	return tool, nil
}

func testConfig(contentURL, seoURL, syncURL string) *config.AutomationConfig {
	return &config.AutomationConfig{
		ContentServiceURL: contentURL,
		SEOServiceURL:     seoURL,
		SyncServiceURL:    syncURL,
		ServiceAPIKey:     "test-service-key",
		RequestTimeout:    2 * time.Second,
	}
}

func TestGenerateContent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-service-key" {
			t.Errorf("missing service credential, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tool_slug":"chatgpt","kind":"tagline","content":"Chat with AI"}`))
	}))
	defer upstream.Close()

	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), nil)
	resp, err := svc.GenerateContent(context.Background(), &GenerateContentRequest{
		ToolSlug: "chatgpt",
		Kind:     "tagline",
	})
	if err != nil {
		t.Fatalf("generate content: %v", err)
	}
	if resp.Content != "Chat with AI" {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestRunSEOBatch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"batch_id":"b-1","accepted":2}`))
	}))
	defer upstream.Close()

	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), nil)
	resp, err := svc.RunSEOBatch(context.Background(), &SEOBatchRequest{Slugs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("run seo batch: %v", err)
	}
	if resp.Accepted != 2 {
		t.Errorf("expected 2 accepted, got %d", resp.Accepted)
	}
}

func TestSyncToolsUpsertsFetchedTools(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tools":[
			{"slug":"chatgpt","name":"ChatGPT","tagline":"Chat with AI","description":"Conversational assistant","category":"chat","pricing":"freemium","website_url":"https://chat.example.com","logo_url":"https://chat.example.com/logo.png"},
			{"slug":"midjourney","name":"Midjourney","tagline":"Images from text","description":"Image generator","category":"image","pricing":"paid","website_url":"https://mj.example.com","logo_url":""}
		]}`))
	}))
	defer upstream.Close()

	catalog := &memoryUpserter{}
	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), catalog)
	result, err := svc.SyncTools(context.Background())
	if err != nil {
		t.Fatalf("sync tools: %v", err)
	}
	if result.Fetched != 2 || result.Upserted != 2 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(catalog.tools) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(catalog.tools))
	}

	first := catalog.tools[0]
	if first.Slug != "chatgpt" || first.Name != "ChatGPT" {
		t.Errorf("unexpected tool %q/%q", first.Slug, first.Name)
	}
	if first.Tagline != "Chat with AI" || first.Category != "chat" {
		t.Errorf("wire fields not carried through: %+v", first)
	}
	if first.Pricing != models.PricingFreemium {
		t.Errorf("unexpected pricing %q", first.Pricing)
	}
	if first.Source != "sync" {
		t.Errorf("expected source sync, got %q", first.Source)
	}
}

func TestSyncToolsCountsUpsertFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tools":[{"slug":"a","name":"A"},{"slug":"b","name":"B"}]}`))
	}))
	defer upstream.Close()

	catalog := &memoryUpserter{err: errors.New("constraint violation")}
	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), catalog)
	result, err := svc.SyncTools(context.Background())
	if err != nil {
		t.Fatalf("sync tools: %v", err)
	}
	if result.Fetched != 2 || result.Upserted != 0 || result.Failed != 2 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestClientErrorDoesNotTripBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer upstream.Close()

	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), nil)
	for i := 0; i < 10; i++ {
		_, err := svc.GenerateContent(context.Background(), &GenerateContentRequest{ToolSlug: "x", Kind: "tagline"})
		if err == nil {
			t.Fatal("expected error from 400 response")
		}
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("breaker tripped on client error after %d requests", i+1)
		}
	}
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	svc := NewService(testConfig(upstream.URL, upstream.URL, upstream.URL), nil)
	var sawOpen bool
	for i := 0; i < 10; i++ {
		_, err := svc.GenerateContent(context.Background(), &GenerateContentRequest{ToolSlug: "x", Kind: "tagline"})
		if err == nil {
			t.Fatal("expected error from 502 response")
		}
		if errors.Is(err, ErrCircuitOpen) {
			sawOpen = true
			break
		}
	}
	if !sawOpen {
		t.Error("breaker never opened after repeated upstream failures")
	}

	statuses := svc.UpstreamStatus()
	if len(statuses) != 1 {
		t.Fatalf("expected one breaker, got %d", len(statuses))
	}
	if statuses[0].State != "open" {
		t.Errorf("expected open breaker, got %s", statuses[0].State)
	}
}

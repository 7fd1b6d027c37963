package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestListPropertiesScrollWithRetry(t *testing.T) {
	attempt := 0

	cfg, _ := config.Load()
	cfg.RegistryToken = "test"
	cfg.RegistryBaseURL = "https://example.test/api/v1"
	cfg.RegistryRateLimitRPS = 1000

	client := NewClient(cfg)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/property/scroll" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test" {
				t.Fatalf("authorization=%q", got)
			}
			attempt++
			if attempt == 1 {
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Body:       io.NopCloser(strings.NewReader(`{"error":"boom"}`)),
					Header:     make(http.Header),
				}, nil
			}

			payload := map[string]any{"success": true, "data": map[string]any{"properties": []map[string]any{}, "scrollId": nil}}
			if attempt == 2 {
				payload = map[string]any{"success": true, "data": map[string]any{"properties": []map[string]any{{"id": 1, "name": "Sunset Ridge", "city": "Mesa", "units": 240}}, "scrollId": "abc"}}
			}
			if attempt == 3 {
				payload = map[string]any{"success": true, "data": map[string]any{"properties": []map[string]any{{"id": 2, "name": "Oak Creek Villas"}, {"id": 3, "name": "   "}}, "scrollId": nil}}
			}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	properties, err := client.ListPropertiesAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(properties) != 2 {
		t.Fatalf("len=%d", len(properties))
	}
	if properties[0].Name != "Sunset Ridge" || properties[0].City == nil || *properties[0].City != "Mesa" {
		t.Fatalf("first=%+v", properties[0])
	}
	if properties[0].Units == nil || *properties[0].Units != 240 {
		t.Fatalf("units=%v", properties[0].Units)
	}
}

func TestRateLimiterSpacesTurns(t *testing.T) {
	limiter := newRateLimiter(50)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.waitTurn(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// First turn is immediate; the next two each wait one 20ms slot.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("elapsed=%v", elapsed)
	}
}

func TestRateLimiterAbortsOnCancel(t *testing.T) {
	limiter := newRateLimiter(1)
	if err := limiter.waitTurn(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.waitTurn(ctx); err == nil {
		t.Fatal("expected context error while waiting for the next slot")
	}
}

func TestMissingTokenFailsFast(t *testing.T) {
	cfg, _ := config.Load()
	cfg.RegistryToken = ""
	cfg.RegistryBaseURL = "https://example.test/api/v1"

	if _, err := NewClient(cfg).ListPropertiesAll(context.Background()); err == nil {
		t.Fatal("expected error without token")
	}
}

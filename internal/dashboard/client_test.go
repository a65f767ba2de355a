package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient creates a Client backed by the given httptest TLS server
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Credential: Credential{key: "test-key"},
		HTTPClient: server.Client(),
		PerPage:    2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_HTTPSEnforcement(t *testing.T) {
	_, err := NewClient(Config{
		BaseURL:    "http://api.meraki.com/api/v1",
		Credential: Credential{key: "k"},
	})
	if err == nil {
		t.Fatal("expected error for HTTP URL")
	}
	if got := err.Error(); got != `dashboard: API client requires HTTPS (got "http://api.meraki.com/api/v1")` {
		t.Errorf("unexpected error: %s", got)
	}
}

func TestNewClient_NoCredential(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error without credential")
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "merakitoolkit") {
			t.Errorf("User-Agent = %q", got)
		}
		if r.URL.Path != "/organizations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"1","name":"Acme"}]`))
	}))
	defer server.Close()

	orgs, err := newTestClient(t, server).ListOrganizations(context.Background())
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 1 || orgs[0].Name != "Acme" {
		t.Errorf("orgs = %+v", orgs)
	}
}

func TestClient_RateLimited(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errors":["API rate limit exceeded for organization"]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListOrganizations(context.Background())

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %T: %v", err, err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", rl.RetryAfter)
	}
	if rl.Operation != "getOrganizations" {
		t.Errorf("Operation = %q", rl.Operation)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":["This endpoint only supports wireless networks"]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListSSIDs(context.Background(), "N_1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if len(apiErr.Errors) != 1 || !strings.Contains(apiErr.Errors[0], "wireless") {
		t.Errorf("Errors = %v", apiErr.Errors)
	}
	if IsRateLimited(err) {
		t.Error("400 must not be classified as rate limited")
	}
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListNetworks(context.Background(), "O_1")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClient_DecodeFailureIsUnexpected(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).ListOrganizations(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
	if IsAPIError(err) || IsRateLimited(err) {
		t.Errorf("decode failure should not be an API error: %v", err)
	}
}

func TestClient_ListNetworksPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/organizations/O_1/networks" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.URL.Query().Get("startingAfter") {
		case "":
			if got := r.URL.Query().Get("perPage"); got != "2" {
				t.Errorf("perPage = %q", got)
			}
			w.Header().Set("Link", `<`+server.URL+`/organizations/O_1/networks?perPage=2&startingAfter=N_2>; rel=next, <`+server.URL+`/organizations/O_1/networks?perPage=2&endingBefore=zzz>; rel=last`)
			w.Write([]byte(`[{"id":"N_1","name":"HQ"},{"id":"N_2","name":"Branch"}]`))
		case "N_2":
			w.Write([]byte(`[{"id":"N_3","name":"Lab","tags":["lab"]}]`))
		default:
			t.Errorf("unexpected startingAfter %q", r.URL.Query().Get("startingAfter"))
		}
	}))
	defer server.Close()

	networks, err := newTestClient(t, server).ListNetworks(context.Background(), "O_1")
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(networks) != 3 {
		t.Fatalf("got %d networks, want 3", len(networks))
	}
	if networks[2].ID != "N_3" || networks[2].Tags[0] != "lab" {
		t.Errorf("last network = %+v", networks[2])
	}
}

func TestClient_ListNetworksRejectsForeignLink(t *testing.T) {
	var foreignHits int
	foreign := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits++
		w.Write([]byte(`[]`))
	}))
	defer foreign.Close()

	tests := []struct {
		name string
		link string
	}{
		{"other host", foreign.URL + "/organizations/O_1/networks?startingAfter=N_2"},
		{"plain http", "http://" + strings.TrimPrefix(foreign.URL, "https://") + "/networks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Link", "<"+tt.link+">; rel=next")
				w.Write([]byte(`[{"id":"N_1","name":"HQ"}]`))
			}))
			defer server.Close()

			_, err := newTestClient(t, server).ListNetworks(context.Background(), "O_1")
			if err == nil || !strings.Contains(err.Error(), "refusing pagination link") {
				t.Fatalf("err = %v", err)
			}
		})
	}
	if foreignHits != 0 {
		t.Errorf("foreign server received %d requests", foreignHits)
	}
}

func TestClient_UpdateSSIDPSK(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/networks/N_1/wireless/ssids/2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("request body: %v", err)
		}
		json.NewEncoder(w).Encode(SSID{Number: 2, Name: "Guest", PSK: payload["psk"]})
	}))
	defer server.Close()

	ssid, err := newTestClient(t, server).UpdateSSIDPSK(context.Background(), "N_1", 2, "Secret#9word")
	if err != nil {
		t.Fatalf("UpdateSSIDPSK: %v", err)
	}
	if ssid.PSK != "Secret#9word" || ssid.Number != 2 {
		t.Errorf("ssid = %+v", ssid)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Second},
		{"2", 2 * time.Second},
		{"0", 0},
		{"-1", time.Second},
		{"soon", time.Second},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{now.Add(-5 * time.Second).Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.value, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseLinkNext(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"next and last", `<https://x/a?startingAfter=1>; rel=next, <https://x/a?endingBefore=z>; rel=last`, "https://x/a?startingAfter=1"},
		{"quoted rel", `<https://x/b>; rel="next"`, "https://x/b"},
		{"only first and prev", `<https://x/c>; rel=first, <https://x/d>; rel=prev`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLinkNext(tt.header); got != tt.want {
				t.Errorf("parseLinkNext = %q, want %q", got, tt.want)
			}
		})
	}
}

package ranger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/rangertools/rangerprov/internal/catalog"
)

func newTestClient(t *testing.T, ts *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = ts.URL
	opts.HTTPClient = ts.Client()
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGetServiceFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/service/public/v2/api/service/name/dev_hdfs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "rangerR0cks!" {
			t.Fatalf("missing or wrong basic auth: %s %s", user, pass)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Fatal("missing X-Request-Id header")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("unexpected Accept header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":1,"name":"dev_hdfs","type":"hdfs","configs":{"username":"hdfs"}}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "rangerR0cks!"})

	svc, err := client.GetService(context.Background(), "dev_hdfs")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if svc.Name != "dev_hdfs" || svc.Type != "hdfs" {
		t.Fatalf("unexpected service: %+v", svc)
	}
	if got, _ := svc.Configs.Get("username"); got != "hdfs" {
		t.Fatalf("unexpected username config: %q", got)
	}
}

func TestGetServiceNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	_, err := client.GetService(context.Background(), "dev_hdfs")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetServiceMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>login required</body></html>")
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	_, err := client.GetService(context.Background(), "dev_kafka")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestGetServiceServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"statusCode":1,"msgDesc":"Policy manager is unavailable"}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	_, err := client.GetService(context.Background(), "dev_hive")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("5xx must not classify as absent: %v", err)
	}
	if !strings.Contains(err.Error(), "Policy manager is unavailable") {
		t.Fatalf("error should carry server detail, got %v", err)
	}
}

func TestCreateService(t *testing.T) {
	const wantBody = `{"name":"dev_kafka","type":"kafka","configs":{"username":"kafka","password":"kafka","zookeeper.connect":"ranger-zk.example.com:2181"}}`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/service/public/v2/api/service" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type: %s", got)
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(raw) != wantBody {
			t.Fatalf("unexpected body:\n got %s\nwant %s", raw, wantBody)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":7,"name":"dev_kafka","type":"kafka","configs":{"username":"kafka"}}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	svc := catalog.Service{
		Name: "dev_kafka",
		Type: "kafka",
		Configs: catalog.Pairs(
			"username", "kafka",
			"password", "kafka",
			"zookeeper.connect", "ranger-zk.example.com:2181",
		),
	}

	created, err := client.CreateService(context.Background(), svc)
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	if created.Name != "dev_kafka" {
		t.Fatalf("unexpected created service: %+v", created)
	}
}

func TestCreateServiceRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"statusCode":1,"msgDesc":"Duplicate value for parameter name"}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	_, err := client.CreateService(context.Background(), catalog.Service{
		Name: "dev_hdfs", Type: "hdfs", Configs: catalog.Pairs(),
	})
	if err == nil || !strings.Contains(err.Error(), "Duplicate value for parameter name") {
		t.Fatalf("expected rejection detail, got %v", err)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer shiny-token" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"dev_knox","type":"knox","configs":{}}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{
		Username: "admin",
		Password: "ignored-when-token-set",
		Token:    "shiny-token",
	})

	if _, err := client.GetService(context.Background(), "dev_knox"); err != nil {
		t.Fatalf("GetService: %v", err)
	}
}

func TestPing(t *testing.T) {
	var status int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{Username: "admin", Password: "secret"})

	status = http.StatusOK
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy ping, got %v", err)
	}

	status = http.StatusServiceUnavailable
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure on 503")
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"plain http", "http://ranger:6080", false},
		{"https", "https://ranger.example.com", false},
		{"trailing slash trimmed", "http://ranger:6080/", false},
		{"unsupported scheme", "ftp://ranger:6080", true},
		{"missing host", "http://", true},
		{"relative", "ranger:6080/x", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(Options{BaseURL: tc.baseURL, Username: "admin", Password: "x"})
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.baseURL)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.baseURL, err)
			}
		})
	}
}

func TestRateLimiterBoundsSecondRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := newTestClient(t, ts, Options{
		Username:  "admin",
		Password:  "secret",
		RateLimit: rate.Limit(1),
		RateBurst: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("first request should pass the limiter: %v", err)
	}

	start := time.Now()
	err := client.Ping(ctx)
	if err == nil {
		t.Fatal("second request should be held by the limiter past the deadline")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("limiter should fail fast against the deadline, took %s", elapsed)
	}
}

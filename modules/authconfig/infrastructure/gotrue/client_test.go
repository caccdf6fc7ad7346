package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type errRoundTripper struct{}

func (errRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("boom")
}

type errTokens struct{}

func (errTokens) Token(context.Context) (string, error) { return "", errors.New("no key") }

func TestNew(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://localhost:8000", "http://", "http://%zz"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	c, err := New("http://localhost:8000/")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "http://localhost:8000" {
		t.Fatalf("base=%q", c.baseURL)
	}
}

func TestClient_Fetch(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method=%s", r.Method)
		}
		if r.URL.Path != "/v1/projects/proj1/config/auth" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"SITE_URL":              "https://example.invalid",
			"HOOK_SEND_SMS_ENABLED": true,
			"HOOK_SEND_SMS_URI":     nil,
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTokenSource(StaticToken("tok1")))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := c.Fetch(context.Background(), "proj1")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok1" {
		t.Fatalf("auth=%q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected request id")
	}
	if string(cfg["HOOK_SEND_SMS_ENABLED"]) != "true" || string(cfg["HOOK_SEND_SMS_URI"]) != "null" {
		t.Fatalf("cfg=%v", cfg)
	}
	if _, ok := cfg["SITE_URL"]; !ok {
		t.Fatal("expected foreign keys kept")
	}
}

func TestClient_Update(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("method=%s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type=%q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := c.Update(context.Background(), "proj1", types.Payload{
		types.FieldSendEmailEnabled: types.Bool(false),
		types.FieldSendEmailURI:     types.Unset(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got["HOOK_SEND_EMAIL_URI"]) != "null" || string(got["HOOK_SEND_EMAIL_ENABLED"]) != "false" {
		t.Fatalf("got=%v", got)
	}
	if len(cfg) != 2 {
		t.Fatalf("cfg=%v", cfg)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/projects/missing/config/auth":
			http.Error(w, "project not found", http.StatusNotFound)
		case "/v1/projects/empty/config/auth":
			w.WriteHeader(http.StatusBadGateway)
		case "/v1/projects/null/config/auth":
			_, _ = w.Write([]byte("null"))
		default:
			_, _ = w.Write([]byte("{"))
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Fetch(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "project not found") {
		t.Fatalf("err=%v", err)
	}

	_, err = c.Fetch(context.Background(), "empty")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err=%v", err)
	}
	if httpErr.Error() != "gotrue: http 502: Bad Gateway" {
		t.Fatalf("msg=%q", httpErr.Error())
	}

	if _, err := c.Fetch(context.Background(), "null"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Fetch(context.Background(), "broken"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Fetch(context.Background(), " "); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Update(context.Background(), "", types.Payload{}); err == nil {
		t.Fatal("expected error")
	}

	tc, err := New(srv.URL, WithTokenSource(errTokens{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tc.Fetch(context.Background(), "proj1"); err == nil || !strings.Contains(err.Error(), "access token") {
		t.Fatalf("err=%v", err)
	}

	rc, err := New(srv.URL, WithHTTPClient(&http.Client{Transport: errRoundTripper{}}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rc.Fetch(context.Background(), "proj1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_Spans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/projects/bad/config/auth" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	c, err := New(srv.URL, WithTracerProvider(tp))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background(), "ok"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Update(context.Background(), "bad", types.Payload{}); err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans=%d", len(spans))
	}
	if spans[0].Name() != "gotrue.FetchAuthConfig" || spans[0].Status().Code == codes.Error {
		t.Fatalf("span0=%s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "gotrue.UpdateAuthConfig" || spans[1].Status().Code != codes.Error {
		t.Fatalf("span1=%s %v", spans[1].Name(), spans[1].Status())
	}
}

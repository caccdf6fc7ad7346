package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jacksonlee411/authhooks/gotrue"

// TokenSource supplies the bearer token for the management API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client talks to the project auth configuration endpoint of the management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	tracer     trace.Tracer
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("gotrue: http %d: %s", e.StatusCode, msg)
}

func IsNotFound(err error) bool {
	e, ok := errors.AsType[*HTTPError](err)
	return ok && e.StatusCode == http.StatusNotFound
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("gotrue: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("gotrue: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("gotrue: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("gotrue: invalid base url host")
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) configURL(projectRef string) (string, error) {
	projectRef = strings.TrimSpace(projectRef)
	if projectRef == "" {
		return "", errors.New("gotrue: missing project ref")
	}
	return c.baseURL + "/v1/projects/" + url.PathEscape(projectRef) + "/config/auth", nil
}

// Fetch returns the full auth configuration object of a project.
func (c *Client) Fetch(ctx context.Context, projectRef string) (types.RemoteConfig, error) {
	endpoint, err := c.configURL(projectRef)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "gotrue.FetchAuthConfig", http.MethodGet, endpoint, projectRef, nil)
}

// Update merges payload into the project's auth configuration and returns the updated object.
// Unset values are sent as null.
func (c *Client) Update(ctx context.Context, projectRef string, payload types.Payload) (types.RemoteConfig, error) {
	endpoint, err := c.configURL(projectRef)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "gotrue.UpdateAuthConfig", http.MethodPatch, endpoint, projectRef, body)
}

func (c *Client) do(ctx context.Context, spanName string, method string, endpoint string, projectRef string, body []byte) (out types.RemoteConfig, err error) {
	ctx, span := c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("authconfig.project_ref", projectRef),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, idErr := uuid.NewV7(); idErr == nil {
		req.Header.Set("X-Request-Id", id.String())
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("gotrue: access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode/100 != 2 {
		return nil, readHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gotrue: decode auth config: %w", err)
	}
	if out == nil {
		return nil, errors.New("gotrue: empty auth config")
	}
	return out, nil
}

func readHTTPError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}

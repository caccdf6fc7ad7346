package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	publicBaseURL string
	httpClient    *http.Client
}

type Identity struct {
	ID     string         `json:"id"`
	Traits map[string]any `json:"traits"`
}

// StringTrait returns a trimmed non-empty string trait.
func (i Identity) StringTrait(key string) (string, bool) {
	v, ok := i.Traits[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// StringMapTrait returns an object trait whose values are strings. Non-string values are skipped.
func (i Identity) StringMapTrait(key string) map[string]string {
	raw, ok := i.Traits[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
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
	return fmt.Sprintf("kratos: http %d: %s", e.StatusCode, msg)
}

// IsUnauthenticated reports whether err is a whoami rejection of the session token.
func IsUnauthenticated(err error) bool {
	he, ok := errors.AsType[*HTTPError](err)
	if !ok {
		return false
	}
	return he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden
}

func New(publicBaseURL string) (*Client, error) {
	publicBaseURL = strings.TrimSpace(publicBaseURL)
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	if publicBaseURL == "" {
		return nil, errors.New("kratos: missing public base url")
	}
	u, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, errors.New("kratos: invalid public base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("kratos: invalid public base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("kratos: invalid public base url host")
	}
	return &Client{
		publicBaseURL: publicBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (c *Client) Whoami(ctx context.Context, sessionToken string) (Identity, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return Identity{}, &HTTPError{StatusCode: http.StatusUnauthorized, Message: "missing session token"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicBaseURL+"/sessions/whoami", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Session-Token", sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Identity{}, readHTTPError(resp)
	}

	var out struct {
		Active   *bool    `json:"active"`
		Identity Identity `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Identity{}, err
	}
	if out.Active != nil && !*out.Active {
		return Identity{}, &HTTPError{StatusCode: http.StatusUnauthorized, Message: "session inactive"}
	}
	if out.Identity.ID == "" {
		return Identity{}, errors.New("kratos: missing identity id")
	}
	return out.Identity, nil
}

func readHTTPError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}

package fineract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	BaseURL         string
	Tenant          string
	Username        string
	Password        string
	Timeout         time.Duration
	RateLimitPerMin int
}

// ConfigFromEnv reads the service-level Fineract account used by background runs.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL:  strings.TrimSpace(os.Getenv("FINERACT_BASE_URL")),
		Tenant:   strings.TrimSpace(os.Getenv("FINERACT_TENANT")),
		Username: os.Getenv("FINERACT_USERNAME"),
		Password: os.Getenv("FINERACT_PASSWORD"),
		Timeout:  defaultTimeout,
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "default"
	}
	if v := strings.TrimSpace(os.Getenv("FINERACT_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FINERACT_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}
	return cfg
}

// WithCredentials returns a copy of cfg authenticating as another user.
func (cfg Config) WithCredentials(tenant, username, password string) Config {
	if strings.TrimSpace(tenant) != "" {
		cfg.Tenant = tenant
	}
	cfg.Username = username
	cfg.Password = password
	return cfg
}

// APIClient talks to one Fineract tenant over its REST API.
type APIClient struct {
	baseURL  string
	tenant   string
	username string
	password string
	http     *http.Client
	limiter  *rate.Limiter
}

func NewClient(cfg Config) (*APIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("fineract base url is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("fineract base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tenant := strings.TrimSpace(cfg.Tenant)
	if tenant == "" {
		tenant = "default"
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMin)), 1)
	}
	return &APIClient{
		baseURL:  baseURL,
		tenant:   tenant,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
	}, nil
}

func (c *APIClient) Tenant() string {
	return c.tenant
}

type request struct {
	method      string
	path        string
	params      url.Values
	body        io.Reader
	contentType string
	accept      string
}

func (c *APIClient) do(ctx context.Context, r request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + r.path
	if len(r.params) > 0 {
		endpoint = endpoint + "?" + r.params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Fineract-Platform-TenantId", c.tenant)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		_ = json.Unmarshal(body, apiErr)
		apiErr.StatusCode = resp.StatusCode
		apiErr.Body = strings.TrimSpace(string(body))
		return nil, apiErr
	}
	return body, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, params: params})
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

func (c *APIClient) sendJSON(ctx context.Context, method, path string, in any, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	}
	body, err := c.do(ctx, request{method: method, path: path, body: payload, contentType: "application/json"})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decode(path, body, out)
}

func decode(path string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

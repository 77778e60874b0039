// Package webapi implements the CRM services over the Dataverse Web API
// (OData v4). Metadata comes from EntityDefinitions, pages from FetchXML
// queries against the table's entity set.
package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/udssoftware/crmsize/pkg/clients"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/crm"
	crmerrors "github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

// Options configures a Client
type Options struct {
	// BaseURL is the Web API root, e.g. https://org.crm.dynamics.com/api/data/v9.2/
	BaseURL string
	// Language selects a localized label when the user label is missing (0 = none)
	Language int
}

// Client talks to one CRM organization
type Client struct {
	baseURL  *url.URL
	language int
	http     *clients.HTTPClient
	logger   *zap.Logger

	mu     sync.RWMutex
	tables map[string]tableRef
}

// tableRef is what page queries need to know about a table
type tableRef struct {
	entitySet string
	primaryID string
}

var (
	_ crm.Service     = (*Client)(nil)
	_ crm.TableLister = (*Client)(nil)
)

// New creates a client from configuration, authenticating with OAuth2
// client credentials.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.ValidateService(); err != nil {
		return nil, err
	}

	httpClient := clients.NewHTTPClient(HTTPConfig(cfg), logger)

	creds := clientcredentials.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		TokenURL:     cfg.Auth.ResolveTokenURL(),
		Scopes:       cfg.ResolveScopes(),
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: httpClient.Transport(),
		Timeout:   cfg.HTTP.RequestTimeout,
	})
	source := creds.TokenSource(tokenCtx)
	httpClient.WrapTransport(func(base http.RoundTripper) http.RoundTripper {
		return &oauth2.Transport{Source: source, Base: base}
	})

	return NewClient(Options{
		BaseURL:  APIBaseURL(cfg.Service.URL, cfg.Service.APIVersion),
		Language: cfg.Service.Language,
	}, httpClient, logger)
}

// NewClient creates a client over an already authenticated transport
func NewClient(opts Options, httpClient *clients.HTTPClient, logger *zap.Logger) (*Client, error) {
	base := opts.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, crmerrors.Newf(crmerrors.ErrorTypeConfig, "invalid Web API base URL %q", opts.BaseURL)
	}

	return &Client{
		baseURL:  u,
		language: opts.Language,
		http:     httpClient,
		logger:   logger.With(zap.String("component", "webapi")),
		tables:   make(map[string]tableRef),
	}, nil
}

// APIBaseURL joins the organization URL and API version into the Web API root
func APIBaseURL(orgURL, version string) string {
	return strings.TrimRight(orgURL, "/") + "/api/data/v" + version + "/"
}

// HTTPConfig maps the transport and reliability sections onto the HTTP client
func HTTPConfig(cfg *config.Config) *clients.HTTPConfig {
	return &clients.HTTPConfig{
		MaxIdleConnsPerHost:   cfg.HTTP.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.HTTP.IdleConnTimeout,
		DialTimeout:           cfg.HTTP.DialTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		RequestTimeout:        cfg.HTTP.RequestTimeout,
		EnableHTTP2:           cfg.HTTP.EnableHTTP2,
		RateLimit:             cfg.HTTP.RateLimit,
		RateBurst:             cfg.HTTP.RateBurst,
		CircuitBreakerEnabled: cfg.HTTP.CircuitBreaker,
		CircuitBreaker: clients.CircuitBreakerConfig{
			FailureThreshold: cfg.HTTP.FailureThreshold,
			SuccessThreshold: cfg.HTTP.SuccessThreshold,
			Timeout:          cfg.HTTP.BreakerTimeout,
		},
		Retry: &clients.RetryPolicy{
			MaxAttempts:     cfg.Reliability.RetryAttempts,
			InitialDelay:    cfg.Reliability.RetryDelay,
			MaxDelay:        cfg.Reliability.MaxRetryDelay,
			Multiplier:      cfg.Reliability.RetryMultiplier,
			RandomizeFactor: 0.25,
		},
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}

// get issues a GET against a path relative to the Web API root and
// decodes the JSON body into out. Error responses become faults.
func (c *Client) get(ctx context.Context, operation, path string, query url.Values, header http.Header, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return crmerrors.Wrap(err, crmerrors.ErrorTypeInternal, "invalid request path")
	}
	target := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = encodeQuery(query)
	}

	resp, err := c.http.Do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("OData-MaxVersion", "4.0")
		req.Header.Set("OData-Version", "4.0")
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	})
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return crmerrors.Wrap(err, crmerrors.ErrorTypeAuthentication, "failed to acquire access token")
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeFault(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return crmerrors.Wrap(err, crmerrors.ErrorTypeData, fmt.Sprintf("failed to decode %s response", operation))
	}
	return nil
}

// encodeQuery keeps OData system query options readable: '$' and ','
// are left unescaped, everything else is percent encoded.
func encodeQuery(q url.Values) string {
	s := q.Encode()
	s = strings.ReplaceAll(s, "%24", "$")
	s = strings.ReplaceAll(s, "%2C", ",")
	return s
}

// entityKey renders the alternate key segment of a table, quoting the name
func entityKey(logicalName string) string {
	quoted := strings.ReplaceAll(logicalName, "'", "''")
	return "EntityDefinitions(LogicalName='" + url.PathEscape(quoted) + "')"
}

func (c *Client) remember(logicalName string, ref tableRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[strings.ToLower(logicalName)] = ref
}

func (c *Client) lookup(logicalName string) (tableRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.tables[strings.ToLower(logicalName)]
	return ref, ok
}

package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	pipelineerrors "github.com/opsconductor/pipeline-core/internal/errors"
	"github.com/opsconductor/pipeline-core/internal/pipeline/resilience"
	sharedhttp "github.com/opsconductor/pipeline-core/pkg/shared/http"
)

// assetListSchemaJSON is the minimal OpenAPI schema an asset-service list
// response must satisfy: a {"data": {"assets": [...]}} envelope whose
// entries carry at least hostname and ip_address. Unknown fields pass
// through untouched. Validating before trusting the body keeps a
// misbehaving asset-service from poisoning downstream stages with
// malformed data.
const assetListSchemaJSON = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "object",
      "required": ["assets"],
      "properties": {
        "assets": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["hostname", "ip_address"],
            "properties": {
              "hostname": {"type": "string"},
              "ip_address": {"type": "string"},
              "environment": {"type": "string"},
              "os_family": {"type": "string"},
              "services": {"type": "array", "items": {"type": "string"}},
              "tags": {"type": "object"}
            }
          }
        }
      }
    }
  }
}`

// assetListEnvelope is the asset-service's list response wrapper.
type assetListEnvelope struct {
	Data struct {
		Assets []Asset `json:"assets"`
	} `json:"data"`
}

// Config holds the asset-service connection settings from
// internal/config.AssetServiceConfig.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	CacheTTL         time.Duration
	CacheSize        int
	FailureThreshold float64
	CooldownSeconds  int

	OAuthTokenURL    string
	OAuthClientID    string
	OAuthClientSecret string
}

// Client is the Asset Context Provider's HTTP-facing half: FetchAssets is
// wrapped by a circuit breaker and an LRU cache keyed by (filter, limit).
type Client struct {
	httpClient *http.Client
	baseURL    string
	schema     *openapi3.Schema
	breaker    *resilience.CircuitBreaker
	cache      *resilience.LRUCache
	logger     *zap.Logger
}

// NewClient builds the guarded asset-service client. When OAuthTokenURL
// is set, requests authenticate via the OAuth2 client-credentials grant;
// otherwise the client is unauthenticated (suitable for a trusted
// in-cluster asset-service).
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal([]byte(assetListSchemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("failed to parse asset list schema: %w", err)
	}

	httpCfg := sharedhttp.DefaultClientConfig()
	httpCfg.Timeout = cfg.Timeout
	httpClient := sharedhttp.NewClient(httpCfg)

	if cfg.OAuthTokenURL != "" {
		oauthCfg := &clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
		}
		httpClient = oauthCfg.Client(context.Background())
		httpClient.Timeout = cfg.Timeout
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		schema:     &schema,
		breaker:    resilience.NewCircuitBreaker("asset-service", cfg.FailureThreshold, time.Duration(cfg.CooldownSeconds)*time.Second),
		cache:      resilience.NewLRUCache(cacheSize, cacheTTL),
		logger:     logger,
	}, nil
}

func cacheKey(filter string, limit int) string {
	return filter + "::" + strconv.Itoa(limit)
}

// FetchAssets retrieves assets matching filter (sent as the service's
// search token), capped at limit. Results are cached by (filter, limit)
// and guarded by the circuit breaker; a cache hit never invokes the
// breaker at all.
func (c *Client) FetchAssets(ctx context.Context, filter string, limit int) ([]Asset, error) {
	key := cacheKey(filter, limit)

	cached, err := c.cache.GetOrLoad(key, func() (interface{}, error) {
		return c.fetchFromService(ctx, filter, limit)
	})
	if err != nil {
		if c.breaker.GetState() == resilience.CircuitStateOpen {
			return nil, pipelineerrors.NewCircuitOpenError(c.breaker.GetName())
		}
		return nil, pipelineerrors.New(pipelineerrors.ErrorTypeAssetServiceDegraded, err.Error())
	}
	return cached.([]Asset), nil
}

func (c *Client) fetchFromService(ctx context.Context, filter string, limit int) ([]Asset, error) {
	var assets []Asset
	callErr := c.breaker.Call(func() error {
		u, err := url.Parse(c.baseURL + "/")
		if err != nil {
			return fmt.Errorf("invalid asset-service base URL: %w", err)
		}
		q := u.Query()
		if filter != "" {
			q.Set("search", filter)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("failed to build asset-service request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("asset-service request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read asset-service response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("asset-service returned status %d", resp.StatusCode)
		}

		var raw interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("failed to parse asset-service response: %w", err)
		}
		if err := c.schema.VisitJSON(raw); err != nil {
			return fmt.Errorf("asset-service response failed schema validation: %w", err)
		}

		var envelope assetListEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("failed to decode asset-service response: %w", err)
		}
		assets = envelope.Data.Assets
		return nil
	})

	if callErr != nil {
		c.logger.Warn("asset-service fetch failed", zap.String("filter", filter), zap.Error(callErr))
		return nil, callErr
	}
	return assets, nil
}

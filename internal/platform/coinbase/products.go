package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// RESTClient is the client for the exchange REST API, used for product
// discovery. All endpoints we call are public and unauthenticated.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a REST client.
//
// baseURL is the API root, e.g. "https://api.exchange.coinbase.com".
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListProducts returns the IDs of products that are online and quoted in the
// given currency. Pass an empty quote to list every online product.
func (c *RESTClient) ListProducts(ctx context.Context, quote string) ([]string, error) {
	body, err := c.doGet(ctx, "/products")
	if err != nil {
		return nil, fmt.Errorf("coinbase/rest: list products: %w", err)
	}

	var products []APIProduct
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("coinbase/rest: decode products: %w", err)
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.Status != "online" || p.TradingDisabled {
			continue
		}
		if quote != "" && p.QuoteCurrency != quote {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// GetProduct returns one product by ID.
func (c *RESTClient) GetProduct(ctx context.Context, id string) (APIProduct, error) {
	body, err := c.doGet(ctx, "/products/"+id)
	if err != nil {
		return APIProduct{}, fmt.Errorf("coinbase/rest: get product %s: %w", id, err)
	}

	var p APIProduct
	if err := json.Unmarshal(body, &p); err != nil {
		return APIProduct{}, fmt.Errorf("coinbase/rest: decode product: %w", err)
	}
	return p, nil
}

// doGet sends an unauthenticated GET request to the exchange API.
func (c *RESTClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses to errors, preserving the sentinel
// classes callers branch on.
func checkHTTPStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d", domain.ErrRateLimited, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status=%d", domain.ErrNotFound, status)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

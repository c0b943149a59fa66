package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// MaxPageSize is the largest page the platform accepts on list endpoints.
const MaxPageSize = 100

type client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a marketplace client adapter.
func NewClient(baseURL, appKey, appSecret string, timeout time.Duration, logger zerolog.Logger) ports.MarketplaceClient {
	return &client{
		baseURL:   baseURL,
		appKey:    appKey,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// envelope is the platform's uniform response wrapper. A non-zero code
// means the request failed; data carries the endpoint-specific payload.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body interface{}, accessToken string) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Key", c.appKey)
	if accessToken != "" {
		req.Header.Set("X-Access-Token", accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if env.Code != 0 {
		c.logger.Debug().
			Int("code", env.Code).
			Str("path", path).
			Str("message", env.Message).
			Msg("Marketplace API returned error code")
		return nil, &APIError{Code: env.Code, Message: env.Message}
	}

	return env.Data, nil
}

func (c *client) RefreshToken(ctx context.Context, refreshToken string) (*ports.TokenGrant, error) {
	body := map[string]string{
		"app_key":       c.appKey,
		"app_secret":    c.appSecret,
		"refresh_token": refreshToken,
	}

	data, err := c.do(ctx, http.MethodPost, "/api/v2/token/refresh", nil, body, "")
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	var grant struct {
		AccessToken         string `json:"access_token"`
		RefreshToken        string `json:"refresh_token"`
		AccessTokenExpireIn int64  `json:"access_token_expire_in"`
	}
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("failed to decode token grant: %w", err)
	}

	return &ports.TokenGrant{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    time.Unix(grant.AccessTokenExpireIn, 0).UTC(),
	}, nil
}

func timeWindowQuery(externalShopID string, q ports.PageQuery, fromKey, toKey string) url.Values {
	values := url.Values{}
	values.Set("shop_id", externalShopID)
	values.Set(fromKey, strconv.FormatInt(q.StartTime.Unix(), 10))
	if !q.EndTime.IsZero() {
		values.Set(toKey, strconv.FormatInt(q.EndTime.Unix(), 10))
	}
	values.Set("page_size", strconv.Itoa(q.PageSize))
	if q.PageToken != "" {
		values.Set("page_token", q.PageToken)
	}
	// Newest-first ordering is what convergence detection depends on.
	values.Set("sort", "desc")
	return values
}

func (c *client) ListOrders(ctx context.Context, accessToken, externalShopID string, q ports.PageQuery) (*ports.OrderPage, error) {
	values := timeWindowQuery(externalShopID, q, "create_time_from", "create_time_to")

	data, err := c.do(ctx, http.MethodGet, "/api/orders/search", values, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders, next, err := normalizeOrderPage(data, externalShopID)
	if err != nil {
		return nil, err
	}
	return &ports.OrderPage{Orders: orders, NextPageToken: next}, nil
}

func (c *client) ListSettlements(ctx context.Context, accessToken, externalShopID string, q ports.PageQuery) (*ports.SettlementPage, error) {
	values := timeWindowQuery(externalShopID, q, "settle_time_from", "settle_time_to")

	data, err := c.do(ctx, http.MethodGet, "/api/finance/settlements/search", values, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	settlements, next, err := normalizeSettlementPage(data, externalShopID)
	if err != nil {
		return nil, err
	}
	return &ports.SettlementPage{Settlements: settlements, NextPageToken: next}, nil
}

func (c *client) ListProducts(ctx context.Context, accessToken, externalShopID, pageToken string, pageSize int) (*ports.ProductPage, error) {
	values := url.Values{}
	values.Set("shop_id", externalShopID)
	values.Set("page_size", strconv.Itoa(pageSize))
	values.Set("status", "active")
	if pageToken != "" {
		values.Set("page_token", pageToken)
	}

	data, err := c.do(ctx, http.MethodGet, "/api/products/search", values, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products, next, err := normalizeProductPage(data, externalShopID)
	if err != nil {
		return nil, err
	}
	return &ports.ProductPage{Products: products, NextPageToken: next}, nil
}

func (c *client) GetProduct(ctx context.Context, accessToken, externalShopID, productID string) (*domain.Product, error) {
	values := url.Values{}
	values.Set("shop_id", externalShopID)
	values.Set("product_id", productID)

	data, err := c.do(ctx, http.MethodGet, "/api/products/details", values, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}

	return normalizeProduct(data, externalShopID)
}

func (c *client) GetPerformanceReport(ctx context.Context, accessToken, externalShopID string, start, end time.Time) ([]domain.ProductPerformance, error) {
	values := url.Values{}
	values.Set("shop_id", externalShopID)
	values.Set("start_date", start.Format("2006-01-02"))
	values.Set("end_date", end.Format("2006-01-02"))

	data, err := c.do(ctx, http.MethodGet, "/api/analytics/product_performance", values, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance report: %w", err)
	}

	var report struct {
		Performances []struct {
			ProductID        string  `json:"product_id"`
			ClickThroughRate float64 `json:"ctr"`
			GMV              float64 `json:"gmv"`
			OrderCount       int     `json:"order_count"`
			UnitsSold        int     `json:"units_sold"`
		} `json:"performances"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode performance report: %w", err)
	}

	perfs := make([]domain.ProductPerformance, 0, len(report.Performances))
	for _, p := range report.Performances {
		perfs = append(perfs, domain.ProductPerformance{
			ProductID:        p.ProductID,
			ClickThroughRate: p.ClickThroughRate,
			GMV:              p.GMV,
			OrderCount:       p.OrderCount,
			UnitsSold:        p.UnitsSold,
		})
	}
	return perfs, nil
}

package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// RestClient fetches full-depth snapshots from the venue REST API.
type RestClient struct {
	baseURL    string
	limit      int
	httpClient *http.Client
}

// NewRestClient creates a client for baseURL, e.g. "https://api.binance.us".
// limit is the number of levels requested per side (1000 when <= 0).
func NewRestClient(baseURL string, limit int) *RestClient {
	if limit <= 0 {
		limit = 1000
	}
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchSnapshot issues GET /api/v3/depth for symbol.
func (c *RestClient) FetchSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("limit", strconv.Itoa(c.limit))
	endpoint := c.baseURL + "/api/v3/depth?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: create request: %w", err)
	}
	req.Header.Set("User-Agent", "tradecore/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: %w: snapshot %s: %v", domain.ErrProtocol, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: %w: snapshot %s: status %d: %s",
			domain.ErrProtocol, symbol, resp.StatusCode, truncate(body, 256))
	}

	var raw DepthSnapshot
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: %w: decode snapshot: %v", domain.ErrProtocol, err)
	}
	snap, err := raw.ToDomain(strings.ToUpper(symbol))
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("binance/rest: %w", err)
	}
	return snap, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

var _ domain.SnapshotFetcher = (*RestClient)(nil)

package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
)

const DefaultPriceFeedURL = "https://hermes.pyth.network"

// PriceFeed returns USD prices keyed by normalized feed id.
type PriceFeed interface {
	Prices(ctx context.Context, feedIDs []string) (map[string]*big.Rat, error)
}

// PythClient queries a Pyth Hermes endpoint.
type PythClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPythClient builds a PythClient. A nil httpClient uses http.DefaultClient.
func NewPythClient(baseURL string, httpClient *http.Client) *PythClient {
	if baseURL == "" {
		baseURL = DefaultPriceFeedURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PythClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type pythFeed struct {
	ID    string `json:"id"`
	Price struct {
		Price json.RawMessage `json:"price"`
		Expo  int32           `json:"expo"`
	} `json:"price"`
}

// Prices fetches the latest price of every feed id in one request.
func (c *PythClient) Prices(ctx context.Context, feedIDs []string) (map[string]*big.Rat, error) {
	out := make(map[string]*big.Rat, len(feedIDs))
	if len(feedIDs) == 0 {
		return out, nil
	}

	query := url.Values{}
	for _, id := range feedIDs {
		query.Add("ids[]", "0x"+normalizeFeedID(id))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/latest_price_feeds?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var feeds []pythFeed
	if err := json.NewDecoder(resp.Body).Decode(&feeds); err != nil {
		return nil, fmt.Errorf("price feed: decode: %w", err)
	}

	for _, feed := range feeds {
		price, err := scalePrice(feed.Price.Price, feed.Price.Expo)
		if err != nil {
			continue
		}
		out[normalizeFeedID(feed.ID)] = price
	}
	return out, nil
}

// scalePrice returns price * 10^expo exactly. price may be a JSON string or number.
func scalePrice(raw json.RawMessage, expo int32) (*big.Rat, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	mantissa, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", text)
	}
	if mantissa.Sign() < 0 {
		return nil, fmt.Errorf("negative price %s", mantissa)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(expo))), nil)
	if expo < 0 {
		return new(big.Rat).SetFrac(mantissa, scale), nil
	}
	return new(big.Rat).SetInt(new(big.Int).Mul(mantissa, scale)), nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

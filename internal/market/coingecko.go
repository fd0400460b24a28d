package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Идентификаторы CoinGecko для поддерживаемых базовых активов
var coinGeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"BNB": "binancecoin",
	"SOL": "solana",
	"XRP": "ripple",
	"ADA": "cardano",
	"DOGE": "dogecoin",
}

// CoinGeckoClient - клиент публичного API CoinGecko.
//
// Назначение:
// Единственный внешний источник цен. Вызовы идут через retry с
// экспоненциальной задержкой, так как бесплатный тариф CoinGecko
// агрессивно отдает 429.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoClient создает клиент CoinGecko
func NewCoinGeckoClient(timeout time.Duration) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    "https://api.coingecko.com/api/v3",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// simplePriceEntry - элемент ответа /simple/price
type simplePriceEntry struct {
	USD          float64 `json:"usd"`
	USDChange24h float64 `json:"usd_24h_change"`
	USDVolume24h float64 `json:"usd_24h_vol"`
}

// FetchTickers запрашивает цены для списка пар одним запросом.
// Пары с неизвестным CoinGecko не возвращаются в результате.
func (c *CoinGeckoClient) FetchTickers(ctx context.Context, pairs []string) ([]Ticker, error) {
	ids := make([]string, 0, len(pairs))
	pairByID := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		base, quote, err := models.SplitPair(pair)
		if err != nil || quote != models.QuoteAsset {
			continue
		}
		id, ok := coinGeckoIDs[base]
		if !ok {
			continue
		}
		ids = append(ids, id)
		pairByID[id] = pair
	}
	if len(ids) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/simple/price?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("coingecko status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	if err := retry.Do(ctx, op, retry.NetworkConfig()); err != nil {
		return nil, err
	}

	var payload map[string]simplePriceEntry
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode coingecko response: %w", err)
	}

	now := time.Now().UTC()
	tickers := make([]Ticker, 0, len(payload))
	for id, entry := range payload {
		pair, ok := pairByID[id]
		if !ok {
			continue
		}
		tickers = append(tickers, Ticker{
			Pair:      pair,
			Price:     decimal.NewFromFloat(entry.USD),
			Change24h: entry.USDChange24h,
			Volume24h: entry.USDVolume24h,
			UpdatedAt: now,
		})
	}
	return tickers, nil
}

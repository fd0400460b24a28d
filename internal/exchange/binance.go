package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/pkg/crypto"
	"github.com/forlabsio/crypto-exchange/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrLiveTradingDisabled возвращается при попытке реального запроса
// в dry-run режиме
var ErrLiveTradingDisabled = errors.New("live trading is disabled")

// BinanceClient - клиент приватного REST API Binance.
//
// Назначение:
// Агрегатные хедж-заявки торгового цикла и сверка балансов площадки.
// Приватные запросы подписываются HMAC-SHA256 от query string.
// API-секрет хранится в конфигурации зашифрованным (AES-GCM) и
// расшифровывается только в памяти процесса.
//
// При выключенном liveTrading заявки не отправляются, а логируются:
// учет пользователей от этого не зависит.
type BinanceClient struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	liveTrading bool
	httpClient  *http.Client
	log         *zap.Logger
}

// NewBinanceClient создает клиент Binance. Секрет передается в
// зашифрованном base64-виде и расшифровывается ключом encryptionKey.
func NewBinanceClient(baseURL, apiKey, encryptedSecret, encryptionKey string, liveTrading bool, timeout time.Duration, log *zap.Logger) (*BinanceClient, error) {
	c := &BinanceClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		liveTrading: liveTrading,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}
	if liveTrading {
		secret, err := crypto.Decrypt(encryptedSecret, []byte(encryptionKey))
		if err != nil {
			return nil, fmt.Errorf("decrypt binance api secret: %w", err)
		}
		c.apiSecret = secret
	}
	return c, nil
}

// PlaceQuoteMarketOrder выставляет рыночную заявку по символу
// (например BTCUSDT). Сумма указывается в котируемой валюте,
// количество базового актива определяет площадка по своей цене.
func (c *BinanceClient) PlaceQuoteMarketOrder(ctx context.Context, symbol, side string, quoteQty decimal.Decimal) error {
	if !c.liveTrading {
		c.log.Info("dry-run hedge order",
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.String("quote_quantity", quoteQty.String()),
		)
		return nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", quoteQty.String())

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return err
	}

	var resp struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode order response: %w", err)
	}
	c.log.Info("hedge order placed",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("quote_quantity", quoteQty.String()),
		zap.Int64("venue_order_id", resp.OrderID),
		zap.String("venue_status", resp.Status),
	)
	return nil
}

// AccountBalance возвращает свободный баланс актива на площадке
func (c *BinanceClient) AccountBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if !c.liveTrading {
		return decimal.Zero, ErrLiveTradingDisabled
	}

	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("decode account response: %w", err)
	}
	for _, b := range resp.Balances {
		if b.Asset == asset {
			return decimal.NewFromString(b.Free)
		}
	}
	return decimal.Zero, nil
}

// signedRequest выполняет подписанный запрос с ретраями
func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var body []byte
	op := func() error {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		query := params.Encode()
		query += "&signature=" + c.sign(query)

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-MBX-APIKEY", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("binance status %d: %s", resp.StatusCode, string(body))
		}
		return nil
	}
	if err := retry.Do(ctx, op, retry.DefaultConfig()); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

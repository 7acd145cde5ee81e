// Package binancefut adapts a USDT-margined perpetual futures venue to
// the venue.Adapter contract. It is the one illustrative concrete venue
// integration this repository ships; further venues follow the same shape.
package binancefut

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"funding-hedge-core/pkg/venue"
)

// Config holds per-venue credentials and connection settings.
type Config struct {
	VenueName  string
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms, default 5000
	QuoteAsset string
}

// Adapter is a USDT-margined perpetual futures venue.Adapter.
type Adapter struct {
	cfg        Config
	name       string
	baseURL    string
	wsURL      string
	httpClient *http.Client
	limiter    *venue.RateLimiter
}

// New builds a binancefut Adapter. cfg.VenueName defaults to "binancefut".
func New(cfg Config) *Adapter {
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	name := cfg.VenueName
	if name == "" {
		name = "binancefut"
	}
	base := "https://fapi.binance.com"
	ws := "wss://fstream.binance.com/ws"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
		ws = "wss://stream.binancefuture.com/ws"
	}
	return &Adapter{
		cfg:        cfg,
		name:       name,
		baseURL:    base,
		wsURL:      ws,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    venue.NewRateLimiter(20, 40),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return a.do(ctx, http.MethodGet, path, params, true)
}

func (a *Adapter) signedPost(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return a.do(ctx, http.MethodPost, path, params, true)
}

func (a *Adapter) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return a.do(ctx, http.MethodGet, path, params, false)
}

func (a *Adapter) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := a.limiter.Wait(ctx, a.name); err != nil {
		return nil, venue.Wrap(venue.KindInternal, "rate limiter wait", err)
	}
	if params == nil {
		params = url.Values{}
	}
	if signed {
		if a.cfg.APIKey == "" || a.cfg.APISecret == "" {
			return nil, venue.New(venue.KindAuthFailed, "missing api key/secret")
		}
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(a.cfg.RecvWindow, 10))
		params.Set("signature", sign(a.cfg.APISecret, params.Encode()))
	}

	u := a.baseURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, u+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, venue.Wrap(venue.KindInternal, "build request", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", a.cfg.APIKey)
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, venue.Wrap(venue.KindNetwork, "http request", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, venue.Wrap(venue.KindNetwork, "read body", err)
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == 418 {
		return nil, venue.New(venue.KindRateLimited, string(body))
	}
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, venue.New(venue.KindAuthFailed, string(body))
	}
	if res.StatusCode >= 300 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Code != 0 {
			return nil, venue.Exchange(strconv.Itoa(apiErr.Code), apiErr.Msg)
		}
		return nil, venue.New(venue.KindExchange, fmt.Sprintf("status %d: %s", res.StatusCode, string(body)))
	}
	return body, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func decStr(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ venue.Adapter = (*Adapter)(nil)

// GetPositions, GetTotalBalance etc. live in account.go; funding/price
// reads live in market.go; order placement lives in orders.go; streaming
// lives in stream.go. This file only owns transport plumbing.

package trader

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridbot/logger"
	"gridbot/market"
)

// OKX API endpoints
const (
	okxBaseURL      = "https://www.okx.com"
	okxTickerPath   = "/api/v5/market/ticker"
	okxCandlesPath  = "/api/v5/market/candles"
	okxBalancePath  = "/api/v5/account/balance"
	okxOrderPath    = "/api/v5/trade/order"
	okxOrderTimeout = 10 * time.Second
)

// OKXTrader is the OKX spot adapter.
type OKXTrader struct {
	apiKey      string
	secretKey   string
	passphrase  string
	simulated   bool
	analyzeOnly bool

	httpClient *http.Client
	retry      *RetryPolicy
}

type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// genClOrdID produces a 32-char client order ID within the OKX limit.
func genClOrdID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// noProxyFunc disables proxies regardless of environment variables, which
// matters in Docker containers that inherit the host proxy settings.
func noProxyFunc(req *http.Request) (*neturl.URL, error) {
	return nil, nil
}

// NewOKXTrader creates the OKX spot adapter. With analyzeOnly set, order
// placement is refused locally and never reaches the exchange.
func NewOKXTrader(apiKey, secretKey, passphrase string, simulated, analyzeOnly bool) *OKXTrader {
	httpClient := &http.Client{
		Timeout:   okxOrderTimeout,
		Transport: &http.Transport{Proxy: noProxyFunc},
	}

	return &OKXTrader{
		apiKey:      apiKey,
		secretKey:   secretKey,
		passphrase:  passphrase,
		simulated:   simulated,
		analyzeOnly: analyzeOnly,
		httpClient:  httpClient,
		retry:       DefaultRetryPolicy(),
	}
}

func (t *OKXTrader) Name() string { return "okx" }

// sign produces the OKX request signature.
func (t *OKXTrader) sign(timestamp, method, requestPath, body string) string {
	preHash := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(t.secretKey))
	h.Write([]byte(preHash))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// doRequest executes one signed request and classifies failures.
func (t *OKXTrader) doRequest(method, path string, body interface{}) (json.RawMessage, error) {
	var bodyBytes []byte
	var err error

	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	signature := t.sign(timestamp, method, path, string(bodyBytes))

	req, err := http.NewRequest(method, okxBaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("OK-ACCESS-KEY", t.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", t.passphrase)
	req.Header.Set("Content-Type", "application/json")
	if t.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(err)
	}

	var okxResp okxResponse
	if err := json.Unmarshal(respBody, &okxResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if okxResp.Code != "0" {
		return nil, ClassifyOKXError(okxResp.Code, okxResp.Msg, resp.StatusCode)
	}
	return okxResp.Data, nil
}

// doRequestRetry wraps doRequest with the transient-failure retry policy.
func (t *OKXTrader) doRequestRetry(op, method, path string, body interface{}) (json.RawMessage, error) {
	var data json.RawMessage
	err := t.retry.Do(op, func() error {
		var reqErr error
		data, reqErr = t.doRequest(method, path, body)
		return reqErr
	})
	return data, err
}

// Ticker fetches the current market snapshot.
func (t *OKXTrader) Ticker(symbol string) (*Ticker, error) {
	path := fmt.Sprintf("%s?instId=%s", okxTickerPath, symbol)
	data, err := t.doRequestRetry("fetch ticker", "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	var tickers []struct {
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Vol24h string `json:"vol24h"`
	}
	if err := json.Unmarshal(data, &tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("ticker response empty for %s", symbol)
	}

	d := tickers[0]
	result := &Ticker{Symbol: symbol}
	result.Last, _ = strconv.ParseFloat(d.Last, 64)
	result.Bid, _ = strconv.ParseFloat(d.BidPx, 64)
	result.Ask, _ = strconv.ParseFloat(d.AskPx, 64)
	result.Vol24h, _ = strconv.ParseFloat(d.Vol24h, 64)
	if result.Last <= 0 {
		return nil, fmt.Errorf("invalid ticker price for %s", symbol)
	}
	return result, nil
}

// Candles fetches recent OHLCV history. OKX returns newest first; the
// result is reversed to oldest first.
func (t *OKXTrader) Candles(symbol, bar string, limit int) ([]market.Candle, error) {
	path := fmt.Sprintf("%s?instId=%s&bar=%s&limit=%d", okxCandlesPath, symbol, bar, limit)
	data, err := t.doRequestRetry("fetch candles", "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		c := market.Candle{Time: time.UnixMilli(ts)}
		c.Open, _ = strconv.ParseFloat(row[1], 64)
		c.High, _ = strconv.ParseFloat(row[2], 64)
		c.Low, _ = strconv.ParseFloat(row[3], 64)
		c.Close, _ = strconv.ParseFloat(row[4], 64)
		c.Volume, _ = strconv.ParseFloat(row[5], 64)
		candles = append(candles, c)
	}
	return candles, nil
}

// Balance fetches the available spot balance for one currency.
func (t *OKXTrader) Balance(currency string) (*Balance, error) {
	path := fmt.Sprintf("%s?ccy=%s", okxBalancePath, currency)
	data, err := t.doRequestRetry("fetch balance", "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	var accounts []struct {
		Details []struct {
			Ccy       string `json:"ccy"`
			AvailBal  string `json:"availBal"`
			FrozenBal string `json:"frozenBal"`
		} `json:"details"`
	}
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, err
	}

	result := &Balance{Currency: currency}
	for _, acct := range accounts {
		for _, d := range acct.Details {
			if d.Ccy == currency {
				result.Available, _ = strconv.ParseFloat(d.AvailBal, 64)
				result.Frozen, _ = strconv.ParseFloat(d.FrozenBal, 64)
				return result, nil
			}
		}
	}
	return result, nil
}

// MarketBuy places a market buy spending the given quote notional.
func (t *OKXTrader) MarketBuy(symbol string, notional float64) (*OrderResult, error) {
	if t.analyzeOnly {
		logger.Infof("🔍 analyze-only mode, skipping buy %s %.2f", symbol, notional)
		return nil, fmt.Errorf("trading disabled in analyze-only mode")
	}

	body := map[string]string{
		"instId":  symbol,
		"tdMode":  "cash",
		"side":    "buy",
		"ordType": "market",
		"tgtCcy":  "quote_ccy",
		"sz":      strconv.FormatFloat(notional, 'f', -1, 64),
		"clOrdId": genClOrdID(),
	}
	return t.placeOrder("market buy", body)
}

// MarketSell places a market sell of the given base size.
func (t *OKXTrader) MarketSell(symbol string, size float64) (*OrderResult, error) {
	if t.analyzeOnly {
		logger.Infof("🔍 analyze-only mode, skipping sell %s %.6f", symbol, size)
		return nil, fmt.Errorf("trading disabled in analyze-only mode")
	}

	body := map[string]string{
		"instId":  symbol,
		"tdMode":  "cash",
		"side":    "sell",
		"ordType": "market",
		"sz":      strconv.FormatFloat(size, 'f', -1, 64),
		"clOrdId": genClOrdID(),
	}
	return t.placeOrder("market sell", body)
}

func (t *OKXTrader) placeOrder(op string, body map[string]string) (*OrderResult, error) {
	// Order placement is never retried blindly; a timeout may still have
	// filled on the exchange.
	data, err := t.doRequest("POST", okxOrderPath, body)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	var orders []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		SCode   string `json:"sCode"`
		SMsg    string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%s failed: empty order response", op)
	}
	if orders[0].SCode != "0" {
		return nil, ClassifyOKXError(orders[0].SCode, orders[0].SMsg, http.StatusOK)
	}

	logger.Infof("✅ %s submitted: %s ordId=%s", op, body["instId"], orders[0].OrdID)
	return &OrderResult{
		OrderID:   orders[0].OrdID,
		ClientID:  orders[0].ClOrdID,
		Submitted: true,
	}, nil
}

// OrderDetail fetches the fill state of a placed order.
func (t *OKXTrader) OrderDetail(symbol, orderID string) (*OrderDetail, error) {
	path := fmt.Sprintf("%s?instId=%s&ordId=%s", okxOrderPath, symbol, orderID)
	data, err := t.doRequestRetry("fetch order detail", "GET", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order detail: %w", err)
	}

	var orders []struct {
		OrdID     string `json:"ordId"`
		State     string `json:"state"`
		AccFillSz string `json:"accFillSz"`
		AvgPx     string `json:"avgPx"`
		Fee       string `json:"fee"`
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	o := orders[0]
	detail := &OrderDetail{OrderID: o.OrdID, State: o.State}
	detail.FillSize, _ = strconv.ParseFloat(o.AccFillSz, 64)
	detail.AvgPrice, _ = strconv.ParseFloat(o.AvgPx, 64)
	fee, _ := strconv.ParseFloat(o.Fee, 64)
	// OKX reports fees as negative numbers.
	detail.Fee = -fee
	return detail, nil
}

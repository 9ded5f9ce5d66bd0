package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// KIS open API hosts. The virtual host serves the brokerage's own
// simulated accounts with the same API surface.
const (
	kisRealBaseURL    = "https://openapi.koreainvestment.com:9443"
	kisVirtualBaseURL = "https://openapivts.koreainvestment.com:29443"
)

// KISGateway Korea Investment & Securities REST gateway for domestic
// equities. Satisfies both the market data and order capabilities.
type KISGateway struct {
	baseURL     string
	appKey      string
	appSecret   string
	accountNo   string
	productCode string
	virtual     bool

	client *http.Client

	// Access token cache, persisted to disk because KIS rate-limits
	// token issuance and the engine runs as a short-lived process
	tokenFile   string
	accessToken string
	tokenExpiry time.Time
	tokenMutex  sync.Mutex

	// Short-lived response caches (same idea as an exchange gateway
	// keeping balance/position snapshots between close calls)
	cachedPositions    []HeldPosition
	positionsCacheTime time.Time
	cacheMutex         sync.RWMutex
	cacheDuration      time.Duration
}

// KISConfig credentials and account identity for the KIS gateway
type KISConfig struct {
	AppKey      string
	AppSecret   string
	AccountNo   string
	ProductCode string // usually "01"
	Virtual     bool   // route to the brokerage's virtual-account host
	DataDir     string // token cache location
}

// NewKIS creates a KIS gateway
func NewKIS(cfg KISConfig) *KISGateway {
	baseURL := kisRealBaseURL
	if cfg.Virtual {
		baseURL = kisVirtualBaseURL
	}
	mode := "real"
	if cfg.Virtual {
		mode = "virtual"
	}
	return &KISGateway{
		baseURL:       baseURL,
		appKey:        cfg.AppKey,
		appSecret:     cfg.AppSecret,
		accountNo:     cfg.AccountNo,
		productCode:   cfg.ProductCode,
		virtual:       cfg.Virtual,
		client:        &http.Client{Timeout: 15 * time.Second},
		tokenFile:     filepath.Join(cfg.DataDir, fmt.Sprintf("kis_token_%s.json", mode)),
		cacheDuration: 5 * time.Second,
	}
}

// trID returns the transaction ID for an operation; virtual accounts use
// the V-prefixed variants of the same endpoints
func (k *KISGateway) trID(real, virtual string) string {
	if k.virtual {
		return virtual
	}
	return real
}

type kisTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// token returns a valid access token, reusing the cached one until close
// to expiry
func (k *KISGateway) token() (string, error) {
	k.tokenMutex.Lock()
	defer k.tokenMutex.Unlock()

	if k.accessToken != "" && time.Now().Before(k.tokenExpiry.Add(-5*time.Minute)) {
		return k.accessToken, nil
	}

	// Try the on-disk cache first (issued by a previous invocation)
	if data, err := os.ReadFile(k.tokenFile); err == nil {
		var ct cachedToken
		if json.Unmarshal(data, &ct) == nil && time.Now().Before(ct.Expiry.Add(-5*time.Minute)) {
			k.accessToken = ct.AccessToken
			k.tokenExpiry = ct.Expiry
			return k.accessToken, nil
		}
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     k.appKey,
		"appsecret":  k.appSecret,
	})
	resp, err := k.client.Post(k.baseURL+"/oauth2/tokenP", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("KIS token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr kisTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("KIS token response decode failed: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("KIS token request rejected (status %d)", resp.StatusCode)
	}

	k.accessToken = tr.AccessToken
	k.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	if data, err := json.Marshal(cachedToken{AccessToken: k.accessToken, Expiry: k.tokenExpiry}); err == nil {
		_ = os.WriteFile(k.tokenFile, data, 0600)
	}
	return k.accessToken, nil
}

// kisEnvelope common KIS response wrapper
type kisEnvelope struct {
	RtCd    string          `json:"rt_cd"`
	MsgCd   string          `json:"msg_cd"`
	Msg1    string          `json:"msg1"`
	Output  json.RawMessage `json:"output"`
	Output1 json.RawMessage `json:"output1"`
	Output2 json.RawMessage `json:"output2"`
}

// call performs one authenticated request and unwraps the envelope
func (k *KISGateway) call(method, path, trID string, query url.Values, body interface{}) (*kisEnvelope, error) {
	token, err := k.token()
	if err != nil {
		return nil, err
	}

	reqURL := k.baseURL + path
	if query != nil {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", k.appKey)
	req.Header.Set("appsecret", k.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("KIS request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var env kisEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("KIS response decode failed for %s: %w", path, err)
	}
	if env.RtCd != "0" {
		return nil, fmt.Errorf("KIS API error %s: %s", env.MsgCd, env.Msg1)
	}
	return &env, nil
}

// kisFloat KIS returns all numbers as strings
func kisFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// GetCurrentPrice latest trade price for an instrument
func (k *KISGateway) GetCurrentPrice(code string) (float64, error) {
	query := url.Values{}
	query.Set("fid_cond_mrkt_div_code", "J")
	query.Set("fid_input_iscd", code)

	env, err := k.call("GET", "/uapi/domestic-stock/v1/quotations/inquire-price", "FHKST01010100", query, nil)
	if err != nil {
		return 0, err
	}

	var out struct {
		StckPrpr string `json:"stck_prpr"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return 0, fmt.Errorf("KIS price output decode failed: %w", err)
	}
	price := kisFloat(out.StckPrpr)
	if price <= 0 {
		return 0, fmt.Errorf("KIS returned no price for %s", code)
	}
	return price, nil
}

// GetOHLC daily candles, oldest first. The daily-price endpoint serves
// the most recent 30 sessions, which covers the 14-period ATR window.
func (k *KISGateway) GetOHLC(code string, limit int) ([]Candle, error) {
	query := url.Values{}
	query.Set("fid_cond_mrkt_div_code", "J")
	query.Set("fid_input_iscd", code)
	query.Set("fid_period_div_code", "D")
	query.Set("fid_org_adj_prc", "0")

	env, err := k.call("GET", "/uapi/domestic-stock/v1/quotations/inquire-daily-price", "FHKST01010400", query, nil)
	if err != nil {
		return nil, err
	}

	var out []struct {
		Date   string `json:"stck_bsop_date"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Close  string `json:"stck_clpr"`
		Volume string `json:"acml_vol"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("KIS OHLC output decode failed: %w", err)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	// KIS returns newest first; the engine wants oldest first
	candles := make([]Candle, 0, len(out))
	for i := len(out) - 1; i >= 0; i-- {
		row := out[i]
		date, _ := time.Parse("20060102", row.Date)
		candles = append(candles, Candle{
			Date:   date,
			Open:   kisFloat(row.Open),
			High:   kisFloat(row.High),
			Low:    kisFloat(row.Low),
			Close:  kisFloat(row.Close),
			Volume: kisFloat(row.Volume),
		})
	}
	return candles, nil
}

// balanceQuery shared parameters of the inquire-balance endpoint
func (k *KISGateway) balanceQuery() url.Values {
	query := url.Values{}
	query.Set("CANO", k.accountNo)
	query.Set("ACNT_PRDT_CD", k.productCode)
	query.Set("AFHR_FLPR_YN", "N")
	query.Set("OFL_YN", "")
	query.Set("INQR_DVSN", "02")
	query.Set("UNPR_DVSN", "01")
	query.Set("FUND_STTL_ICLD_YN", "N")
	query.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	query.Set("PRCS_DVSN", "01")
	query.Set("CTX_AREA_FK100", "")
	query.Set("CTX_AREA_NK100", "")
	return query
}

// GetBalance total account equity (cash + holdings valuation)
func (k *KISGateway) GetBalance() (float64, error) {
	env, err := k.call("GET", "/uapi/domestic-stock/v1/trading/inquire-balance",
		k.trID("TTTC8434R", "VTTC8434R"), k.balanceQuery(), nil)
	if err != nil {
		return 0, err
	}

	var out2 []struct {
		TotEvluAmt string `json:"tot_evlu_amt"`
	}
	if err := json.Unmarshal(env.Output2, &out2); err != nil {
		return 0, fmt.Errorf("KIS balance output decode failed: %w", err)
	}
	if len(out2) == 0 {
		return 0, fmt.Errorf("KIS balance response empty")
	}
	return kisFloat(out2[0].TotEvluAmt), nil
}

// GetPositions currently held instruments, cached briefly since the
// orchestrator asks several times per cycle
func (k *KISGateway) GetPositions() ([]HeldPosition, error) {
	k.cacheMutex.RLock()
	if k.cachedPositions != nil && time.Since(k.positionsCacheTime) < k.cacheDuration {
		cached := k.cachedPositions
		k.cacheMutex.RUnlock()
		return cached, nil
	}
	k.cacheMutex.RUnlock()

	env, err := k.call("GET", "/uapi/domestic-stock/v1/trading/inquire-balance",
		k.trID("TTTC8434R", "VTTC8434R"), k.balanceQuery(), nil)
	if err != nil {
		return nil, err
	}

	var out1 []struct {
		Pdno        string `json:"pdno"`
		PrdtName    string `json:"prdt_name"`
		HldgQty     string `json:"hldg_qty"`
		PchsAvgPric string `json:"pchs_avg_pric"`
	}
	if err := json.Unmarshal(env.Output1, &out1); err != nil {
		return nil, fmt.Errorf("KIS positions output decode failed: %w", err)
	}

	positions := make([]HeldPosition, 0, len(out1))
	for _, row := range out1 {
		qty := int(kisFloat(row.HldgQty))
		if qty <= 0 {
			continue
		}
		positions = append(positions, HeldPosition{
			Code:     row.Pdno,
			Name:     row.PrdtName,
			Quantity: qty,
			AvgPrice: kisFloat(row.PchsAvgPric),
		})
	}

	k.cacheMutex.Lock()
	k.cachedPositions = positions
	k.positionsCacheTime = time.Now()
	k.cacheMutex.Unlock()

	return positions, nil
}

// order places a cash market order ("01" order division, price 0)
func (k *KISGateway) order(code string, quantity int, buy bool) error {
	trID := k.trID("TTTC0802U", "VTTC0802U") // buy
	if !buy {
		trID = k.trID("TTTC0801U", "VTTC0801U") // sell
	}

	body := map[string]string{
		"CANO":         k.accountNo,
		"ACNT_PRDT_CD": k.productCode,
		"PDNO":         code,
		"ORD_DVSN":     "01", // market order
		"ORD_QTY":      strconv.Itoa(quantity),
		"ORD_UNPR":     "0",
	}

	if _, err := k.call("POST", "/uapi/domestic-stock/v1/trading/order-cash", trID, nil, body); err != nil {
		return err
	}

	// Holdings changed; drop the cached snapshot
	k.cacheMutex.Lock()
	k.cachedPositions = nil
	k.cacheMutex.Unlock()
	return nil
}

// MarketBuy places a market buy order
func (k *KISGateway) MarketBuy(code string, quantity int) error {
	return k.order(code, quantity, true)
}

// MarketSell places a market sell order
func (k *KISGateway) MarketSell(code string, quantity int) error {
	return k.order(code, quantity, false)
}

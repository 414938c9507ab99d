package predictor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domsvc "TradePilot/internal/domain/service"
	xhttp "TradePilot/pkg/http"
)

const healthCheckInterval = 10 * time.Second

// HTTPPredictor calls the external model service. Readiness is a
// cached health probe so the decision loop never blocks on it; a
// stale-unhealthy service reads as not ready, which keeps arbitration
// fail-closed.
type HTTPPredictor struct {
	baseURL  string
	client   *xhttp.Client
	attempts int

	mu          sync.Mutex
	ready       bool
	lastChecked time.Time
}

// NewHTTP builds a predictor client against the model service base URL.
func NewHTTP(baseURL string, timeout time.Duration, attempts int) *HTTPPredictor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 2
	}
	return &HTTPPredictor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
	}
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)

type healthDTO struct {
	Status string `json:"status"`
}

// IsReady probes /health at most once per interval and serves the
// cached verdict in between.
func (p *HTTPPredictor) IsReady() bool {
	p.mu.Lock()
	if time.Since(p.lastChecked) < healthCheckInterval {
		ready := p.ready
		p.mu.Unlock()
		return ready
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var dto healthDTO
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    p.baseURL + "/health",
	}, &dto)
	ready := err == nil && dto.Status == "ok"

	p.mu.Lock()
	p.ready = ready
	p.lastChecked = time.Now()
	p.mu.Unlock()
	return ready
}

type predictRequest struct {
	Symbol             string  `json:"symbol"`
	SpreadMean         float64 `json:"spread_mean"`
	SpreadStdDev       float64 `json:"spread_std_dev"`
	Velocity           float64 `json:"velocity"`
	OrderFlowDelta     float64 `json:"order_flow_delta"`
	CumulativeDelta    float64 `json:"cumulative_delta"`
	OrderFlowImbalance float64 `json:"order_flow_imbalance"`
	Volatility         float64 `json:"volatility"`
	EMAFast            float64 `json:"ema_fast"`
	EMASlow            float64 `json:"ema_slow"`
	RSI                float64 `json:"rsi"`
	ATR                float64 `json:"atr"`
	Momentum           float64 `json:"momentum"`
	LastPrice          float64 `json:"last_price"`
}

type predictResponse struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

// Predict posts the feature vector and maps the model's answer to a
// Prediction. Transport failures are returned as errors; the caller
// decides what a missing prediction means.
func (p *HTTPPredictor) Predict(ctx context.Context, fs models.FeatureSet) (models.Prediction, error) {
	req := predictRequest{
		Symbol:             fs.Symbol,
		SpreadMean:         fs.SpreadMean,
		SpreadStdDev:       fs.SpreadStdDev,
		Velocity:           fs.Velocity,
		OrderFlowDelta:     fs.OrderFlowDelta,
		CumulativeDelta:    fs.CumulativeDelta,
		OrderFlowImbalance: fs.Imbalance,
		Volatility:         fs.Volatility,
		EMAFast:            fs.EMAFast,
		EMASlow:            fs.EMASlow,
		RSI:                fs.RSI,
		ATR:                fs.ATR,
		Momentum:           fs.Momentum,
		LastPrice:          fs.LastPrice,
	}

	var resp predictResponse
	var err error
	for i := 1; i <= p.attempts; i++ {
		err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     p.baseURL + "/predict",
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    req,
		}, &resp)
		if err == nil {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return models.Prediction{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Prediction{}, fmt.Errorf("predict: %w", err)
	}

	dir := models.DirectionNone
	switch strings.ToUpper(resp.Direction) {
	case "BUY":
		dir = models.DirectionBuy
	case "SELL":
		dir = models.DirectionSell
	}
	conf := resp.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return models.Prediction{Direction: dir, Confidence: conf}, nil
}

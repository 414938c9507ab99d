package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/service/cache"
	xhttp "TradePilot/pkg/http"
)

const symbolInfoTTL = 5 * time.Minute

// HTTPVenue talks to the venue bridge over its REST API. Symbol
// contract terms change rarely and are served from cache between
// refreshes; every other call goes to the bridge.
type HTTPVenue struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
	cache   cache.BytesCache
}

// NewHTTP builds a REST venue adapter. cache may be nil to disable
// symbol info caching.
func NewHTTP(baseURL, apiKey string, timeout time.Duration, c cache.BytesCache) *HTTPVenue {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPVenue{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		cache:   c,
	}
}

var _ drepo.Venue = (*HTTPVenue)(nil)

func (v *HTTPVenue) headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"X-Api-Key":    v.apiKey,
	}
}

func (v *HTTPVenue) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	err := v.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         v.baseURL + path,
		Headers:     v.headers(),
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("venue get %s: %w", path, err)
	}
	return nil
}

func (v *HTTPVenue) post(ctx context.Context, path string, payload, dest interface{}) error {
	err := v.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     v.baseURL + path,
		Headers: v.headers(),
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("venue post %s: %w", path, err)
	}
	return nil
}

type tickDTO struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	TimeMs int64   `json:"time_ms"`
}

func (v *HTTPVenue) GetTick(ctx context.Context, symbol string) (*models.MarketRecord, error) {
	var dto tickDTO
	if err := v.get(ctx, "/api/v1/tick", map[string][]string{"symbol": {symbol}}, &dto); err != nil {
		return nil, err
	}
	if dto.Symbol == "" {
		return nil, nil
	}
	rec := models.NewMarketRecord(dto.Symbol, time.UnixMilli(dto.TimeMs), dto.Bid, dto.Ask, dto.Last, dto.Volume)
	return &rec, nil
}

type symbolInfoDTO struct {
	Symbol          string  `json:"symbol"`
	ContractSize    float64 `json:"contract_size"`
	Point           float64 `json:"point"`
	MinLot          float64 `json:"min_lot"`
	MaxLot          float64 `json:"max_lot"`
	LotStep         float64 `json:"lot_step"`
	MinStopDistance float64 `json:"min_stop_distance"`
}

func fromSymbolInfoDTO(dto symbolInfoDTO) models.SymbolInfo {
	return models.SymbolInfo{
		Symbol:          dto.Symbol,
		ContractSize:    dto.ContractSize,
		Point:           dto.Point,
		MinLot:          dto.MinLot,
		MaxLot:          dto.MaxLot,
		LotStep:         dto.LotStep,
		MinStopDistance: dto.MinStopDistance,
	}
}

func (v *HTTPVenue) GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	key := "venue:symbol_info:" + symbol
	if v.cache != nil {
		if b, ok, err := v.cache.GetBytes(key); err == nil && ok {
			var info models.SymbolInfo
			if err := json.Unmarshal(b, &info); err == nil {
				return &info, nil
			}
		}
	}
	var dto symbolInfoDTO
	if err := v.get(ctx, "/api/v1/symbols/"+symbol, nil, &dto); err != nil {
		return nil, err
	}
	if dto.Symbol == "" {
		return nil, nil
	}
	info := fromSymbolInfoDTO(dto)
	if v.cache != nil {
		if b, err := json.Marshal(info); err == nil {
			_ = v.cache.SetBytes(key, b, symbolInfoTTL)
		}
	}
	return &info, nil
}

type orderDTO struct {
	BotID      string  `json:"bot_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type orderResultDTO struct {
	Success     bool    `json:"success"`
	FilledPrice float64 `json:"filled_price"`
	ErrorCode   int     `json:"error_code"`
	Reason      string  `json:"reason"`
}

func toOrderDTO(req models.OrderRequest) orderDTO {
	return orderDTO{
		BotID:      req.BotID,
		Symbol:     req.Symbol,
		Direction:  string(req.Direction),
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
	}
}

func fromResultDTO(dto orderResultDTO) *models.OrderResult {
	return &models.OrderResult{
		Success:     dto.Success,
		FilledPrice: dto.FilledPrice,
		ErrorCode:   dto.ErrorCode,
		Reason:      dto.Reason,
	}
}

func (v *HTTPVenue) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	var dto orderResultDTO
	if err := v.post(ctx, "/api/v1/orders", toOrderDTO(req), &dto); err != nil {
		return nil, err
	}
	return fromResultDTO(dto), nil
}

func (v *HTTPVenue) CloseOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	var dto orderResultDTO
	if err := v.post(ctx, "/api/v1/orders/close", toOrderDTO(req), &dto); err != nil {
		return nil, err
	}
	return fromResultDTO(dto), nil
}

type positionDTO struct {
	BotID      string  `json:"bot_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Volume     float64 `json:"volume"`
	EntryPrice float64 `json:"entry_price"`
	OpenTimeMs int64   `json:"open_time_ms"`
}

func fromPositionDTO(dto positionDTO) models.Position {
	return models.Position{
		BotID:      dto.BotID,
		Symbol:     dto.Symbol,
		Direction:  models.Direction(dto.Direction),
		Volume:     dto.Volume,
		EntryPrice: dto.EntryPrice,
		OpenTime:   time.UnixMilli(dto.OpenTimeMs),
	}
}

func (v *HTTPVenue) GetOpenPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	var dtos []positionDTO
	query := map[string][]string{}
	if symbol != "" {
		query["symbol"] = []string{symbol}
	}
	if err := v.get(ctx, "/api/v1/positions", query, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, fromPositionDTO(dto))
	}
	return out, nil
}

type accountInfoDTO struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"free_margin"`
}

func (v *HTTPVenue) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	var dto accountInfoDTO
	if err := v.get(ctx, "/api/v1/account", nil, &dto); err != nil {
		return nil, err
	}
	return &models.AccountInfo{
		Balance:    dto.Balance,
		Equity:     dto.Equity,
		FreeMargin: dto.FreeMargin,
	}, nil
}

type dealDTO struct {
	Symbol string  `json:"symbol"`
	TimeMs int64   `json:"time_ms"`
	Volume float64 `json:"volume"`
	Profit float64 `json:"profit"`
}

func (v *HTTPVenue) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	var dtos []dealDTO
	query := map[string][]string{
		"from": {strconv.FormatInt(from.UnixMilli(), 10)},
		"to":   {strconv.FormatInt(to.UnixMilli(), 10)},
	}
	if err := v.get(ctx, "/api/v1/deals", query, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Deal, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, models.Deal{
			Symbol: dto.Symbol,
			Time:   time.UnixMilli(dto.TimeMs),
			Volume: dto.Volume,
			Profit: dto.Profit,
		})
	}
	return out, nil
}

package api

import (
	"fmt"
	"net/http"

	models "TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/risk"
	"TradePilot/internal/service/ratelimit"
	"TradePilot/internal/usecase"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"
	xutil "TradePilot/pkg/util"

	"github.com/labstack/echo/v4"
)

// ControlHandler exposes the control-plane HTTP API: risk metrics,
// open positions, historical bars and backtest run management.
type ControlHandler struct {
	logger   *xlogger.Logger
	gate     *risk.Gate
	venue    domrepo.Venue
	ledger   domrepo.TradeLedger
	bars     *usecase.BarsUseCase
	backtest *usecase.BacktestManager
	rl       *ratelimit.Limiter
}

func NewControlHandler(
	logger *xlogger.Logger,
	gate *risk.Gate,
	venue domrepo.Venue,
	ledger domrepo.TradeLedger,
	bars *usecase.BarsUseCase,
	backtest *usecase.BacktestManager,
) *ControlHandler {
	return &ControlHandler{
		logger:   logger,
		gate:     gate,
		venue:    venue,
		ledger:   ledger,
		bars:     bars,
		backtest: backtest,
		rl:       ratelimit.New(),
	}
}

func (h *ControlHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/risk", h.Risk)
	g.GET("/positions", h.Positions)
	g.GET("/bars", h.Bars)
	g.POST("/backtest", h.SubmitBacktest)
	g.GET("/backtest/:id", h.BacktestStatus)
	g.DELETE("/backtest/:id", h.CancelBacktest)
}

// allow applies a per-endpoint token bucket keyed by client IP.
func (h *ControlHandler) allow(c echo.Context, endpoint string, capacity, refill float64) bool {
	return h.rl.Allow(endpoint+":"+c.RealIP(), capacity, refill)
}

func (h *ControlHandler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok", "ledger": "ok"}
	code := http.StatusOK
	if err := h.ledger.Health(c.Request().Context()); err != nil {
		status["status"] = "degraded"
		status["ledger"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (h *ControlHandler) Risk(c echo.Context) error {
	req := &models.RiskMetricsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	acct, err := h.venue.GetAccountInfo(c.Request().Context())
	if err != nil {
		h.logger.Error("account info fetch failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	open, err := h.venue.GetOpenPositions(c.Request().Context(), "")
	if err != nil {
		h.logger.Error("open positions fetch failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	m := h.gate.GetRiskMetrics(req.Bot, risk.AccountSnapshot{
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		FloatingPnL:   acct.Equity - acct.Balance,
		OpenPositions: len(open),
	})
	return xhttp.SuccessResponse(c, m)
}

func (h *ControlHandler) Positions(c echo.Context) error {
	req := &models.PositionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	positions, err := h.venue.GetOpenPositions(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("open positions fetch failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, positions, int64(len(positions)))
}

func (h *ControlHandler) Bars(c echo.Context) error {
	if !h.allow(c, "bars", 10, 5) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xutil.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, fmt.Sprintf("invalid from time: %q", req.From))
	}
	to, ok := xutil.ParseTime(req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, fmt.Sprintf("invalid to time: %q", req.To))
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ControlHandler) SubmitBacktest(c echo.Context) error {
	if !h.allow(c, "backtest", 5, 1) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	id, err := h.backtest.Submit(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("backtest submit failed", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.CreatedResponse(c, map[string]string{"id": id})
}

func (h *ControlHandler) BacktestStatus(c echo.Context) error {
	req := &models.BacktestStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	state, ok := h.backtest.Status(req.ID)
	if !ok {
		return xhttp.NotFoundResponse(c, fmt.Sprintf("unknown run: %s", req.ID))
	}
	return xhttp.SuccessResponse(c, state)
}

func (h *ControlHandler) CancelBacktest(c echo.Context) error {
	req := &models.BacktestStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.backtest.Cancel(req.ID) {
		return xhttp.NotFoundResponse(c, fmt.Sprintf("unknown run: %s", req.ID))
	}
	return xhttp.NoContentResponse(c)
}

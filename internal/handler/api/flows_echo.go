package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/service/metrics"
	"CapFlow/internal/service/ratelimit"
	"CapFlow/internal/usecase"
	"CapFlow/pkg/cache"
	xhttp "CapFlow/pkg/http"
	xlogger "CapFlow/pkg/logger"
)

// Dashboard is what the HTTP layer needs from usecase.FlowDashboard.
type Dashboard interface {
	Refresh(ctx context.Context, trigger string) error
	Metrics(ctx context.Context, q usecase.FlowQuery) ([]models.BucketMetrics, error)
	Tape(ctx context.Context, q usecase.FlowQuery, n int) ([]models.TapeItem, error)
	Summary(ctx context.Context, q usecase.FlowQuery) (models.SummaryView, error)
	Leaderboards(ctx context.Context, q usecase.FlowQuery, lq models.LeaderboardQuery) (models.Leaderboards, error)
	BucketDetail(ctx context.Context, bucket string) (models.BucketDetail, error)
	Status(ctx context.Context) models.Status
	Health(ctx context.Context) error
}

const summaryCacheTTL = 5 * time.Minute

// FlowsEchoHandler serves the dashboard API.
type FlowsEchoHandler struct {
	logger *xlogger.Logger
	dash   Dashboard
	rl     *ratelimit.Limiter
	cache  cache.Service
	tape   *TapeHub
}

// HandlerOption configures FlowsEchoHandler.
type HandlerOption func(*FlowsEchoHandler)

// WithRefreshLimiter rate limits POST /api/flows/refresh per client IP.
func WithRefreshLimiter(rl *ratelimit.Limiter) HandlerOption {
	return func(h *FlowsEchoHandler) { h.rl = rl }
}

// WithSummaryCache caches rendered summaries per query and dataset version.
func WithSummaryCache(c cache.Service) HandlerOption {
	return func(h *FlowsEchoHandler) { h.cache = c }
}

// WithTapeHub serves GET /ws/tape from hub.
func WithTapeHub(hub *TapeHub) HandlerOption {
	return func(h *FlowsEchoHandler) { h.tape = hub }
}

func NewFlowsEchoHandler(logger *xlogger.Logger, dash Dashboard, opts ...HandlerOption) *FlowsEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &FlowsEchoHandler{logger: logger, dash: dash}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *FlowsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/flows", h.Flows)
	g.GET("/flows/tape", h.Tape)
	g.GET("/flows/summary", h.Summary)
	g.GET("/flows/leaderboards", h.Leaderboards)
	g.POST("/flows/refresh", h.Refresh)
	g.GET("/buckets/:bucket", h.Bucket)
	g.GET("/status", h.Status)

	if h.tape != nil {
		e.GET("/ws/tape", h.tape.ServeWS)
	}
}

func (h *FlowsEchoHandler) Flows(c echo.Context) error {
	defer observe("flows", time.Now())
	req := &models.FlowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.dash.Metrics(c.Request().Context(), flowQuery(c, req.AssetClass, req.Noise))
	if err != nil {
		return h.fail(c, "flows", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsEchoHandler) Tape(c echo.Context) error {
	defer observe("tape", time.Now())
	req := &models.TapeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.dash.Tape(c.Request().Context(), flowQuery(c, req.AssetClass, req.Noise), req.N)
	if err != nil {
		return h.fail(c, "tape", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsEchoHandler) Summary(c echo.Context) error {
	defer observe("summary", time.Now())
	req := &models.FlowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	q := flowQuery(c, req.AssetClass, req.Noise)

	key := h.summaryKey(ctx, q)
	if key != "" {
		var cached models.SummaryView
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("summary cache read failed", xlogger.Error(err))
		}
	}

	res, err := h.dash.Summary(ctx, q)
	if err != nil {
		return h.fail(c, "summary", err)
	}
	if key != "" {
		if err := h.cache.Set(ctx, key, res, summaryCacheTTL); err != nil {
			h.logger.Warn("summary cache write failed", xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsEchoHandler) Leaderboards(c echo.Context) error {
	defer observe("leaderboards", time.Now())
	req := &models.LeaderboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.dash.Leaderboards(c.Request().Context(), flowQuery(c, req.AssetClass, req.Noise), models.LeaderboardQuery{
		Window:      req.Window,
		Search:      req.Search,
		ShowVolRisk: req.ShowVolRisk != "false",
		MaxRows:     req.MaxRows,
	})
	if err != nil {
		return h.fail(c, "leaderboards", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsEchoHandler) Bucket(c echo.Context) error {
	defer observe("bucket", time.Now())
	req := &models.BucketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// Slashes in bucket names ("CNH/CNY") arrive escaped.
	bucket, err := url.PathUnescape(req.Bucket)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid bucket"))
	}

	res, err := h.dash.BucketDetail(c.Request().Context(), bucket)
	if err != nil {
		return h.fail(c, "bucket", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsEchoHandler) Refresh(c echo.Context) error {
	defer observe("refresh", time.Now())
	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		h.logger.Warn("refresh rate limited", xlogger.String("remote", c.RealIP()))
		metrics.EndpointErrors.WithLabelValues("refresh").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many refresh requests"))
	}

	if err := h.dash.Refresh(c.Request().Context(), "api"); err != nil {
		return h.fail(c, "refresh", err)
	}
	return xhttp.SuccessResponse(c, h.dash.Status(c.Request().Context()))
}

func (h *FlowsEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.dash.Status(c.Request().Context()))
}

// Health reports 200 once data is loaded, with the provider's health attached.
func (h *FlowsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	st := h.dash.Status(ctx)
	body := map[string]interface{}{
		"status":   "ok",
		"provider": st.Provider,
		"loaded":   st.UpdatedAt != nil,
	}
	if err := h.dash.Health(ctx); err != nil {
		body["status"] = "degraded"
		body["provider_error"] = err.Error()
	}
	if st.UpdatedAt == nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, body)
	}
	return xhttp.SuccessResponse(c, body)
}

// fail maps use case errors onto the response envelope.
func (h *FlowsEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.EndpointErrors.WithLabelValues(endpoint).Inc()

	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, usecase.ErrNoData):
		appErr = xhttp.ServiceUnavailableError("flow data not loaded yet")
	case errors.Is(err, usecase.ErrBucketNotFound):
		appErr = xhttp.NotFoundErrorf("bucket %q not found", c.Param("bucket"))
	case errors.Is(err, usecase.ErrRefreshInProgress):
		appErr = xhttp.ConflictError("refresh already in progress")
	case endpoint == "refresh":
		appErr = xhttp.BadGatewayError("flow provider unavailable")
	default:
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	h.logger.Warn(endpoint+" request failed", xlogger.String("code", appErr.Code), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func (h *FlowsEchoHandler) summaryKey(ctx context.Context, q usecase.FlowQuery) string {
	if h.cache == nil {
		return ""
	}
	st := h.dash.Status(ctx)
	if st.UpdatedAt == nil {
		return ""
	}
	noise := "default"
	if q.Noise != nil {
		noise = strconv.FormatFloat(*q.Noise, 'f', -1, 64)
	}
	return cache.GenerateKeyWithParams("summary", st.Provider, st.UpdatedAt.UnixNano(), q.AssetClass, noise)
}

// flowQuery maps request fields; an absent noise parameter keeps the default.
func flowQuery(c echo.Context, assetClass string, noise float64) usecase.FlowQuery {
	q := usecase.FlowQuery{AssetClass: assetClass}
	if c.QueryParam("noise") != "" {
		n := noise
		q.Noise = &n
	}
	return q
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

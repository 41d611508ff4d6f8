package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/NasaVasa/cryptowatch/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errInvalidID    = errors.New("invalid subscriber id")
	errUnknownAsset = errors.New("unknown asset")
	errBadRequest   = errors.New("bad request")
)

type handlers struct {
	subscriptions *usecase.SubscriptionUsecase
	ready         ReadyFunc
	logger        *zap.Logger
}

type subscriberResponse struct {
	ID           int64                  `json:"id"`
	Watchlist    []string               `json:"watchlist"`
	Schedule     *domain.ScheduleRecord `json:"schedule,omitempty"`
	ScheduleText string                 `json:"schedule_text,omitempty"`
	Active       bool                   `json:"active"`
	JobHandle    string                 `json:"job_handle,omitempty"`
	NextFire     *time.Time             `json:"next_fire,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type assetResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Ticker  string `json:"ticker"`
	Default bool   `json:"default"`
}

type watchlistRequest struct {
	Assets []string `json:"assets"`
}

type toggleRequest struct {
	Asset string `json:"asset"`
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/health", h.health)
	router.GET("/ready", h.readiness)

	api := router.Group("/api")
	{
		subscribers := api.Group("/subscribers/:id")
		{
			subscribers.GET("", h.getSubscriber)
			subscribers.PUT("/watchlist", h.setWatchlist)
			subscribers.POST("/watchlist/toggle", h.toggleAsset)
			subscribers.PUT("/schedule", h.setSchedule)
			subscribers.DELETE("/schedule", h.deleteSchedule)
		}
		api.GET("/prices", h.prices)
		api.GET("/assets", h.assets)
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) readiness(c *gin.Context) {
	if h.ready != nil && !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *handlers) getSubscriber(c *gin.Context) {
	id, ok := h.subscriberID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toResponse(h.subscriptions.Settings(id)))
}

func (h *handlers) setWatchlist(c *gin.Context) {
	id, ok := h.subscriberID(c)
	if !ok {
		return
	}
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	ids, err := h.resolveAll(req.Assets)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.subscriptions.SetWatchlist(id, ids)
	c.JSON(http.StatusOK, toResponse(h.subscriptions.Settings(id)))
}

func (h *handlers) toggleAsset(c *gin.Context) {
	id, ok := h.subscriberID(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		h.fail(c, domain.ErrEmptyAsset)
		return
	}
	asset, found := h.subscriptions.Catalog().Resolve(req.Asset)
	if !found {
		h.fail(c, fmt.Errorf("%w: %s", errUnknownAsset, req.Asset))
		return
	}
	if _, err := h.subscriptions.ToggleAsset(id, asset.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(h.subscriptions.Settings(id)))
}

func (h *handlers) setSchedule(c *gin.Context) {
	id, ok := h.subscriberID(c)
	if !ok {
		return
	}
	var record domain.ScheduleRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	spec, err := record.Spec()
	if err != nil {
		h.fail(c, err)
		return
	}
	if spec == nil {
		h.fail(c, fmt.Errorf("%w: kind is required", domain.ErrInvalidSchedule))
		return
	}
	if err := h.subscriptions.ActivateSchedule(c.Request.Context(), id, spec); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(h.subscriptions.Settings(id)))
}

func (h *handlers) deleteSchedule(c *gin.Context) {
	id, ok := h.subscriberID(c)
	if !ok {
		return
	}
	wasActive := h.subscriptions.DeactivateSchedule(id)
	c.JSON(http.StatusOK, gin.H{"was_active": wasActive})
}

func (h *handlers) prices(c *gin.Context) {
	var queries []string
	if raw := c.Query("assets"); raw != "" {
		queries = strings.Split(raw, ",")
	}
	ids, err := h.resolveAll(queries)
	if err != nil {
		h.fail(c, err)
		return
	}
	report, err := h.subscriptions.SnapshotReport(c.Request.Context(), ids)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *handlers) assets(c *gin.Context) {
	catalog := h.subscriptions.Catalog()
	defaults := make(map[string]bool)
	for _, id := range catalog.DefaultIDs() {
		defaults[id] = true
	}
	out := make([]assetResponse, 0, len(catalog.All()))
	for _, asset := range catalog.All() {
		out = append(out, assetResponse{ID: asset.ID, Name: asset.Name, Ticker: asset.Ticker, Default: defaults[asset.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *handlers) subscriberID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %q", errInvalidID, c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *handlers) resolveAll(queries []string) ([]string, error) {
	catalog := h.subscriptions.Catalog()
	ids := make([]string, 0, len(queries))
	for _, query := range queries {
		if strings.TrimSpace(query) == "" {
			continue
		}
		asset, ok := catalog.Resolve(query)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownAsset, strings.TrimSpace(query))
		}
		ids = append(ids, asset.ID)
	}
	return ids, nil
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("http request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSchedule),
		errors.Is(err, domain.ErrEmptyAsset),
		errors.Is(err, errInvalidID),
		errors.Is(err, errUnknownAsset),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyWatchlist):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFetch), errors.Is(err, usecase.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(view usecase.SubscriberView) subscriberResponse {
	resp := subscriberResponse{
		ID:        view.ID,
		Watchlist: view.Watchlist,
		Active:    view.Active,
		JobHandle: string(view.JobHandle),
		CreatedAt: view.CreatedAt,
		UpdatedAt: view.UpdatedAt,
	}
	if resp.Watchlist == nil {
		resp.Watchlist = []string{}
	}
	if view.Schedule != nil {
		record := domain.RecordOf(view.Schedule)
		resp.Schedule = &record
		resp.ScheduleText = view.Schedule.String()
	}
	if !view.NextFire.IsZero() {
		next := view.NextFire
		resp.NextFire = &next
	}
	return resp
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	dispatcher      *service.EventDispatcher
	store           *store.Store
	cache           *redisclient.Client // optional
	stockCacheTTL   time.Duration
	overrideLockTTL time.Duration
}

// NewHandler creates a new HTTP handler. cache may be nil.
func NewHandler(
	dispatcher *service.EventDispatcher,
	st *store.Store,
	cache *redisclient.Client,
	stockCacheTTL, overrideLockTTL time.Duration,
) *Handler {
	return &Handler{
		dispatcher:      dispatcher,
		store:           st,
		cache:           cache,
		stockCacheTTL:   stockCacheTTL,
		overrideLockTTL: overrideLockTTL,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/provider", h.handleWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/number/:number", h.getOrderByNumber)
		v1.GET("/orders/number/:number/events", h.getOrderEvents)
		v1.GET("/inventory/:product_id/stock", h.getStock)
		v1.GET("/inventory/:product_id/movements", h.getMovements)
		v1.GET("/alerts", h.getAlerts)
		v1.GET("/events/failed", h.getFailedEvents)
		v1.GET("/events/stats", h.getEventStats)

		admin := v1.Group("/admin")
		admin.POST("/orders/:number/force-transition", h.forceTransition)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// webhookEnvelope is the provider's delivery wrapper.
type webhookEnvelope struct {
	ID      string          `json:"id" binding:"required"`
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// handleWebhook ingests one provider event. Every terminal outcome, including
// a business-rule rejection, is acknowledged with 2xx so the provider stops
// redelivering; only transient failures return 5xx and invite a retry.
func (h *Handler) handleWebhook(c *gin.Context) {
	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook envelope",
			"details": err.Error(),
		})
		return
	}

	res, err := h.dispatcher.Handle(c.Request.Context(), env.ID, env.Type, env.Payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Temporary failure, please redeliver",
		})
		return
	}

	c.JSON(http.StatusOK, res)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, items, err := h.store.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	h.renderOrder(c, order, items)
}

// getOrderByNumber handles get order by order number
func (h *Handler) getOrderByNumber(c *gin.Context) {
	order, items, err := h.store.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	h.renderOrder(c, order, items)
}

func (h *Handler) renderOrder(c *gin.Context, order *models.Order, items []models.OrderItem) {
	resp := gin.H{
		"order": order,
		"items": items,
	}

	if lastErr, err := h.store.LastEventError(c.Request.Context(), order.OrderNumber); err == nil && lastErr != "" {
		resp["last_event_error"] = lastErr
	}

	c.JSON(http.StatusOK, resp)
}

// getOrderEvents returns the inbound event history for an order, newest first.
func (h *Handler) getOrderEvents(c *gin.Context) {
	events, err := h.store.OrderEvents(c.Request.Context(), c.Param("number"), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// getStock returns the stock level for a SKU, served from the Redis cache when
// warm and folded from the ledger on a miss.
func (h *Handler) getStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	var variantID int64
	if v := c.Query("variant_id"); v != "" {
		variantID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variant ID"})
			return
		}
	}
	sku := models.SKU{ProductID: productID, VariantID: variantID}

	ctx := c.Request.Context()
	if h.cache != nil {
		if level, ok, err := h.cache.GetStockLevel(ctx, productID, variantID); err == nil && ok {
			c.JSON(http.StatusOK, gin.H{"sku": sku, "stock": level, "cached": true})
			return
		}
	}

	level, err := h.store.CurrentStock(ctx, sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stock level"})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetStockLevel(ctx, productID, variantID, level, h.stockCacheTTL); err != nil {
			util.GetLogger().Warn("Failed to cache stock level", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"sku": sku, "stock": level})
}

// getMovements returns the recent ledger entries for a SKU, newest first.
func (h *Handler) getMovements(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	var variantID int64
	if v := c.Query("variant_id"); v != "" {
		variantID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variant ID"})
			return
		}
	}

	movements, err := h.store.Movements(c.Request.Context(),
		models.SKU{ProductID: productID, VariantID: variantID}, queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load movements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

// getAlerts lists unresolved stock alerts
func (h *Handler) getAlerts(c *gin.Context) {
	alerts, err := h.store.OpenAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// getFailedEvents lists rejected events for the operator queue
func (h *Handler) getFailedEvents(c *gin.Context) {
	events, err := h.store.FailedEvents(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// getEventStats summarizes the event store
func (h *Handler) getEventStats(c *gin.Context) {
	stats, err := h.store.EventStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// forceTransitionRequest is the admin request body. The order number comes
// from the URL.
type forceTransitionRequest struct {
	TargetStatus       string `json:"target_status" binding:"required"`
	Reason             string `json:"reason" binding:"required"`
	Actor              string `json:"actor" binding:"required"`
	ReleaseReservation bool   `json:"release_reservation"`
	Restock            bool   `json:"restock"`
}

// forceTransition applies an audited manual override. A short per-order Redis
// lock stops two operators from racing each other during an incident.
func (h *Handler) forceTransition(c *gin.Context) {
	orderNumber := c.Param("number")

	var req forceTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		lockKey := "override:" + orderNumber
		acquired, err := h.cache.AcquireLock(ctx, lockKey, h.overrideLockTTL)
		if err == nil && !acquired {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Another override is in progress for this order",
			})
			return
		}
		if err == nil {
			defer func() {
				if err := h.cache.ReleaseLock(ctx, lockKey); err != nil {
					util.GetLogger().Warn("Failed to release override lock", zap.Error(err))
				}
			}()
		}
	}

	res, err := h.dispatcher.ForceTransition(ctx, &models.OverridePayload{
		OrderNumber:        orderNumber,
		TargetStatus:       req.TargetStatus,
		Reason:             req.Reason,
		Actor:              req.Actor,
		ReleaseReservation: req.ReleaseReservation,
		Restock:            req.Restock,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Override failed, please retry"})
		return
	}
	if res.Outcome == service.OutcomeRejected {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

func queryLimit(c *gin.Context, def int) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

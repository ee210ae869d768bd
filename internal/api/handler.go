package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
	"workshop-service/internal/service"
	"workshop-service/internal/util"
)

// Actor headers set by the upstream auth proxy. The engine trusts them;
// authentication happens before requests reach it.
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// Handler contains HTTP handlers
type Handler struct {
	lifecycle *service.LifecycleService
	ledger    *service.LedgerService
}

// NewHandler creates a new HTTP handler
func NewHandler(lifecycle *service.LifecycleService, ledger *service.LedgerService) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		ledger:    ledger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/history", h.getHistory)
		v1.GET("/orders/:id/settlement", h.getSettlement)
		v1.POST("/orders/:id/transition", h.transition)
		v1.POST("/orders/:id/parts", h.consumeParts)
		v1.POST("/consumptions/:id/reverse", h.reverseConsumption)
		v1.POST("/parts/:id/replenish", h.replenish)
		v1.GET("/parts/:id", h.getStock)
		v1.GET("/alerts/low-stock", h.lowStockParts)
	}
}

// actor extracts the trusted caller claim from the request headers.
func actor(c *gin.Context) (models.Actor, bool) {
	a := models.Actor{
		UserID: c.GetHeader(headerUserID),
		Role:   c.GetHeader(headerRole),
	}
	if a.UserID == "" || a.Role == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Missing actor headers",
		})
		return a, false
	}
	return a, true
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles intake of a new service order
func (h *Handler) createOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.lifecycle.Intake(c.Request.Context(), &req, a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by id
func (h *Handler) getOrder(c *gin.Context) {
	order, consumptions, err := h.lifecycle.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":        order,
		"consumptions": consumptions,
	})
}

// getHistory handles get status history by order id
func (h *Handler) getHistory(c *gin.Context) {
	history, err := h.lifecycle.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// getSettlement handles get settlement by order id
func (h *Handler) getSettlement(c *gin.Context) {
	settlement, err := h.lifecycle.GetSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

type transitionRequest struct {
	TargetStatus string                   `json:"target_status" binding:"required"`
	Payload      models.TransitionPayload `json:"payload"`
}

// transition handles a status transition request
func (h *Handler) transition(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.lifecycle.Transition(c.Request.Context(), c.Param("id"), req.TargetStatus, a, &req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type consumePartsRequest struct {
	Parts []models.PartRequest `json:"parts" binding:"required,min=1,dive"`
}

// consumeParts handles recording parts used during repair
func (h *Handler) consumeParts(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req consumePartsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	consumed, err := h.lifecycle.ConsumeParts(c.Request.Context(), c.Param("id"), req.Parts, a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"consumptions": consumed})
}

// reverseConsumption handles reversal of a consumption record
func (h *Handler) reverseConsumption(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	consumption, err := h.ledger.Reverse(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, consumption)
}

type replenishRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// replenish handles stock replenishment
func (h *Handler) replenish(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req replenishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	stock, err := h.ledger.Replenish(c.Request.Context(), c.Param("id"), req.Quantity, a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// getStock handles get part stock by id
func (h *Handler) getStock(c *gin.Context) {
	stock, err := h.ledger.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// lowStockParts lists parts at or below their reorder threshold
func (h *Handler) lowStockParts(c *gin.Context) {
	parts, err := h.ledger.LowStockParts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"part_ids": parts})
}

// writeError maps the failure kind to an HTTP status. The kind is
// echoed so the UI can localize; ConcurrentModification additionally
// tells the caller to re-read and retry.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case errors.Is(err, apperr.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrInvalidPayload):
		status, kind = http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, apperr.ErrInvalidQuantity):
		status, kind = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, apperr.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperr.ErrOrderClosed):
		status, kind = http.StatusConflict, "order_closed"
	case errors.Is(err, apperr.ErrAlreadyAssigned):
		status, kind = http.StatusConflict, "already_assigned"
	case errors.Is(err, apperr.ErrAlreadyReversed):
		status, kind = http.StatusConflict, "already_reversed"
	case errors.Is(err, apperr.ErrInsufficientStock):
		status, kind = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, apperr.ErrConcurrentModification):
		status, kind = http.StatusConflict, "concurrent_modification"
	}

	body := gin.H{
		"error":   kind,
		"details": err.Error(),
	}
	if errors.Is(err, apperr.ErrConcurrentModification) {
		body["retry"] = true
	}
	c.JSON(status, body)
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

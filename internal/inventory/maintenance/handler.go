package maintenance

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SIMS-backend/internal/inventory/engine"
	"SIMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/maintenance/orders", h.CreateOrder)
	r.GET("/maintenance/orders", h.ListOrders)
	r.GET("/maintenance/orders/:id", h.GetOrder)
	r.POST("/maintenance/orders/:id/start", h.Start)
	r.POST("/maintenance/orders/:id/records", h.RecordWork)
	r.POST("/maintenance/orders/:id/finish", h.Finish)
	r.POST("/maintenance/orders/:id/cancel", h.Cancel)
	r.POST("/maintenance/plans", h.CreatePlan)
	r.GET("/maintenance/plans", h.ListPlans)
	r.POST("/maintenance/plans/:id/configs", h.AddPlanConfig)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.CreateOrder(c.Request.Context(), req, auth.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListOrders(c *gin.Context) {
	var stationID *uint64
	var status *string
	if v := c.Query("station_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			stationID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		status = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	res, err := h.svc.ListOrders(c.Request.Context(), stationID, status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": res})
}

func (h *Handler) Start(c *gin.Context)  { h.statusOp(c, h.svc.Start) }
func (h *Handler) Finish(c *gin.Context) { h.statusOp(c, h.svc.Finish) }
func (h *Handler) Cancel(c *gin.Context) { h.statusOp(c, h.svc.Cancel) }

func (h *Handler) statusOp(c *gin.Context, op func(ctx context.Context, orderID uint64, actorID string) error) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), orderID, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RecordWork(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req RecordWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.RecordWork(c.Request.Context(), orderID, req, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.CreatePlan(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan_id": p.PlanID, "station_id": p.StationID, "name": p.Name, "active": p.Active})
}

func (h *Handler) ListPlans(c *gin.Context) {
	stationID, err := strconv.ParseUint(c.Query("station_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station_id is required"})
		return
	}
	plans, err := h.svc.ListPlans(c.Request.Context(), stationID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(plans))
	for _, p := range plans {
		out = append(out, gin.H{"plan_id": p.PlanID, "station_id": p.StationID, "name": p.Name, "active": p.Active})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (h *Handler) AddPlanConfig(c *gin.Context) {
	planID, ok := pathID(c)
	if !ok {
		return
	}
	var req PlanConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.svc.AddPlanConfig(c.Request.Context(), planID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"config_id": cfg.ConfigID, "plan_id": cfg.PlanID, "asset_id": cfg.AssetID})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(engine.ToHTTPStatus(err), gin.H{
		"code":  engine.CodeOf(err),
		"error": err.Error(),
	})
}

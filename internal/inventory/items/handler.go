package items

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
	r.POST("/items", h.Receive)
	r.GET("/items", h.List)
	r.GET("/items/:code", h.Get)
	r.POST("/items/:code/transfer", h.Transfer)
	r.POST("/items/:code/annul", h.Annul)
	r.POST("/items/:code/dispose", h.Dispose)
	r.POST("/items/:code/lost", h.ReportLost)
	r.POST("/items/:code/adjust", h.Adjust)
	r.POST("/items/:code/consume", h.Consume)
	r.POST("/items/:code/usage-hours", h.AddUsageHours)
}

func (h *Handler) Receive(c *gin.Context) {
	var req ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Receive(c.Request.Context(), req, auth.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("station_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.StationID = &id
		}
	}
	if v := c.Query("kind"); v != "" {
		f.Kind = &v
	}
	if v := c.Query("state"); v != "" {
		f.State = &v
	}
	if v := c.Query("product_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.ProductID = &id
		}
	}
	if v := c.Query("compartment_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.CompartmentID = &id
		}
	}
	p := Page{}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Offset = n
		}
	}

	res, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Transfer(c.Request.Context(), c.Param("code"), req, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Annul(c *gin.Context)      { h.reasonOp(c, h.svc.Annul) }
func (h *Handler) Dispose(c *gin.Context)    { h.reasonOp(c, h.svc.Dispose) }
func (h *Handler) ReportLost(c *gin.Context) { h.reasonOp(c, h.svc.ReportLost) }

func (h *Handler) reasonOp(c *gin.Context, op func(ctx context.Context, code, actorID, reason string) error) {
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := op(c.Request.Context(), c.Param("code"), auth.Actor(c), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Adjust(c.Request.Context(), c.Param("code"), req, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Consume(c.Request.Context(), c.Param("code"), req, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddUsageHours(c *gin.Context) {
	var req UsageHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AddUsageHours(c.Request.Context(), c.Param("code"), req.Hours, auth.Actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	c.JSON(engine.ToHTTPStatus(err), gin.H{
		"code":  engine.CodeOf(err),
		"error": err.Error(),
	})
}

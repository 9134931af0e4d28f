package movements

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/movements", h.List)
	r.GET("/items/:code/movements", h.ItemHistory)
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
	if v := c.Query("actor_id"); v != "" {
		f.ActorID = &v
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}

	res, err := h.svc.List(c.Request.Context(), f, pageFromQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list movements"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ItemHistory(c *gin.Context) {
	code := c.Param("code")
	res, err := h.svc.ItemHistory(c.Request.Context(), code, pageFromQuery(c))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func pageFromQuery(c *gin.Context) Page {
	p := Page{Order: c.Query("order")}
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
	return p
}

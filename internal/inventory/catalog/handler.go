package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SIMS-backend/internal/inventory/engine"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/stations", h.CreateStation)
	r.GET("/stations", h.ListStations)
	r.POST("/stations/:id/locations", h.CreateLocation)
	r.GET("/stations/:id/locations", h.ListLocations)
	r.POST("/locations/:id/compartments", h.CreateCompartment)
	r.GET("/locations/:id/compartments", h.ListCompartments)
	r.POST("/products", h.CreateProduct)
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/states", h.ListStates)
}

type stationRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type compartmentRequest struct {
	Name    string `json:"name" binding:"required"`
	Purpose string `json:"purpose"`
}

type productRequest struct {
	Name              string `json:"name" binding:"required"`
	UsefulLifeMonths  *int64 `json:"useful_life_months"`
	RequiresExpiry    bool   `json:"requires_expiry"`
	LotNumberRequired bool   `json:"lot_number_required"`
}

func (h *Handler) CreateStation(c *gin.Context) {
	var req stationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.svc.CreateStation(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ListStations(c *gin.Context) {
	out, err := h.svc.ListStations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": out})
}

func (h *Handler) CreateLocation(c *gin.Context) {
	stationID, ok := pathID(c)
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc, err := h.svc.CreateLocation(c.Request.Context(), stationID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loc)
}

func (h *Handler) ListLocations(c *gin.Context) {
	stationID, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.svc.ListLocations(c.Request.Context(), stationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}

func (h *Handler) CreateCompartment(c *gin.Context) {
	locationID, ok := pathID(c)
	if !ok {
		return
	}
	var req compartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comp, err := h.svc.CreateCompartment(c.Request.Context(), locationID, req.Name, req.Purpose)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comp)
}

func (h *Handler) ListCompartments(c *gin.Context) {
	locationID, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.svc.ListCompartments(c.Request.Context(), locationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compartments": out})
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := Product{Name: req.Name, RequiresExpiry: req.RequiresExpiry, LotNumberRequired: req.LotNumberRequired}
	if req.UsefulLifeMonths != nil {
		p.UsefulLifeMonths.Valid = true
		p.UsefulLifeMonths.Int64 = *req.UsefulLifeMonths
	}
	created, err := h.svc.CreateProduct(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListProducts(c *gin.Context) {
	out, err := h.svc.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListStates(c *gin.Context) {
	out, err := h.svc.ListStates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": out})
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

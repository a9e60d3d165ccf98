package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidecast/mediapipe/internal/rules"
)

// RuleHandlers exposes CRUD over the persisted rule table (SPEC_FULL's
// "Admin API surface" supplement), grounded on the same thin-binding shape
// as JobHandlers.
type RuleHandlers struct {
	Store *rules.Store
}

func NewRuleHandlers(store *rules.Store) *RuleHandlers {
	return &RuleHandlers{Store: store}
}

// ListRules handles GET /api/rules.
func (h *RuleHandlers) ListRules(c *gin.Context) {
	rows, err := h.Store.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rows, "total": len(rows)})
}

// CreateRule handles POST /api/rules.
func (h *RuleHandlers) CreateRule(c *gin.Context) {
	var in rules.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := h.Store.Create(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// UpdateRule handles PUT /api/rules/:id.
func (h *RuleHandlers) UpdateRule(c *gin.Context) {
	var in rules.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := h.Store.Update(c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// GetRule handles GET /api/rules/:id.
func (h *RuleHandlers) GetRule(c *gin.Context) {
	row, err := h.Store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

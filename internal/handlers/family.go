package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
)

type FamilyHandler struct {
	familyService *services.FamilyService
}

func NewFamilyHandler(families *services.FamilyService) *FamilyHandler {
	return &FamilyHandler{familyService: families}
}

// List returns the caller's families, newest first. Admins may pass all=1.
// GET /api/families
func (h *FamilyHandler) List(c *gin.Context) {
	var err error
	var families interface{}
	if c.Query("all") == "1" && middleware.GetRole(c) == "admin" {
		families, err = h.familyService.ListAll(c.Request.Context())
	} else {
		families, err = h.familyService.ListOwned(c.Request.Context(), middleware.GetUserID(c))
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, families)
}

// GET /api/families/:id
func (h *FamilyHandler) Get(c *gin.Context) {
	family, err := h.familyService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, family)
}

// POST /api/families
func (h *FamilyHandler) Create(c *gin.Context) {
	var req services.FamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	family, err := h.familyService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, family)
}

// PUT /api/families/:id
func (h *FamilyHandler) Update(c *gin.Context) {
	var req services.FamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	family, err := h.familyService.Update(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, family)
}

// DELETE /api/families/:id
func (h *FamilyHandler) Delete(c *gin.Context) {
	if err := h.familyService.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "family deleted"})
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
)

type ProfileHandler struct {
	profileService *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profiles}
}

// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profileService.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, profile)
}

// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req services.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.profileService.Update(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, profile)
}

// UploadAvatar stores a new avatar. A failed upload keeps the old avatar and
// answers 400 with the unchanged profile.
// POST /api/profile/avatar
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		response.BadRequest(c, "avatar file is required")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	result, err := h.profileService.UploadAvatar(c.Request.Context(), middleware.GetUserID(c), file.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	if result.UploadError != "" {
		response.Error(c, response.NewBadRequest(result.UploadError).WithData(result))
		return
	}
	response.Success(c, result)
}

// ClearSelfLink forgets which member the caller is
// DELETE /api/profile/self-link
func (h *ProfileHandler) ClearSelfLink(c *gin.Context) {
	if err := h.profileService.ClearSelfLink(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"self_link": nil})
}

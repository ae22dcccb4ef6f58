package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
	}
}

// List returns every stored setting, or one group with ?group=
// GET /api/system-config
func (h *SystemConfigHandler) List(c *gin.Context) {
	var err error
	var configs interface{}
	if group := c.Query("group"); group != "" {
		configs, err = h.configService.GetByGroup(group)
	} else {
		configs, err = h.configService.List()
	}
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, configs)
}

type authSessionConfig struct {
	AccessTokenExpireHours  int `json:"access_token_expire_hours" binding:"required,min=1,max=720"`
	RefreshTokenExpireHours int `json:"refresh_token_expire_hours" binding:"required,min=1,max=8760"`
}

// GET /api/system-config/auth-session
func (h *SystemConfigHandler) GetAuthSessionConfig(c *gin.Context) {
	response.Success(c, authSessionConfig{
		AccessTokenExpireHours:  h.configService.GetInt(models.ConfigAccessTokenHours, 24),
		RefreshTokenExpireHours: h.configService.GetInt(models.ConfigRefreshTokenHours, 720),
	})
}

// PUT /api/system-config/auth-session
func (h *SystemConfigHandler) UpdateAuthSessionConfig(c *gin.Context) {
	var req authSessionConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.RefreshTokenExpireHours < req.AccessTokenExpireHours {
		response.BadRequest(c, "refresh token lifetime must not be shorter than the access token lifetime")
		return
	}

	err := errors.Join(
		h.configService.Set(models.ConfigAccessTokenHours, strconv.Itoa(req.AccessTokenExpireHours)),
		h.configService.Set(models.ConfigRefreshTokenHours, strconv.Itoa(req.RefreshTokenExpireHours)),
	)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, req)
}

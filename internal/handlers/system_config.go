package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tasktrail/tasktrail/internal/services"
	"github.com/tasktrail/tasktrail/pkg/response"
	"gorm.io/gorm"
)

// SystemConfigHandler exposes admin-editable runtime settings. Routes using
// it are gated on admin.access by the router.
type SystemConfigHandler struct {
	configService *services.SystemConfigService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
	}
}

// GetEmailConfig returns the SMTP settings with the password masked
// GET /api/system/email-config
func (h *SystemConfigHandler) GetEmailConfig(c *gin.Context) {
	response.Success(c, h.configService.GetEmailConfig())
}

// UpdateEmailConfig updates SMTP settings; omitted fields are left unchanged
// PUT /api/system/email-config
func (h *SystemConfigHandler) UpdateEmailConfig(c *gin.Context) {
	var req services.UpdateEmailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.configService.UpdateEmailConfig(&req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.configService.GetEmailConfig())
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/service"
)

// AdminHandler serves platform-wide storage endpoints. Routes must be guarded
// by the platform admin middleware.
type AdminHandler struct {
	Accountant *service.StorageAccountant
	Logger     *zap.Logger
}

func NewAdminHandler(accountant *service.StorageAccountant, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{Accountant: accountant, Logger: logger}
}

func (h *AdminHandler) StorageStats(c *gin.Context) {
	stats, err := h.Accountant.GlobalStats(c.Request.Context())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) StorageCleanup(c *gin.Context) {
	removed, err := h.Accountant.CleanupEmptyDirectories(c.Request.Context())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed_directories": removed})
}

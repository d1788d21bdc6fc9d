package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/http/middleware"
	"github.com/smallbiznis/litshare/internal/service"
)

// LiteratureHandler serves the literature lifecycle and per-group statistics.
type LiteratureHandler struct {
	Lifecycle  *service.LiteratureLifecycle
	Accountant *service.StorageAccountant
	Logger     *zap.Logger
}

func NewLiteratureHandler(lifecycle *service.LiteratureLifecycle, accountant *service.StorageAccountant, logger *zap.Logger) *LiteratureHandler {
	return &LiteratureHandler{Lifecycle: lifecycle, Accountant: accountant, Logger: logger}
}

type createLiteratureRequest struct {
	GroupID    int64  `json:"group_id" binding:"required"`
	Title      string `json:"title" binding:"required,max=2000"`
	StorageRef string `json:"storage_ref" binding:"required,max=1024"`
	SizeBytes  int64  `json:"size_bytes" binding:"min=0"`
}

// Create registers metadata for an uploaded file.
func (h *LiteratureHandler) Create(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req createLiteratureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "group_id, title and storage_ref are required.")
		return
	}
	lit, err := h.Lifecycle.Register(c.Request.Context(), userID, service.NewLiterature{
		GroupID:    req.GroupID,
		Title:      plainText(req.Title),
		StorageRef: req.StorageRef,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, service.NewLiteratureViewModel(lit))
}

func (h *LiteratureHandler) Get(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	litID, ok := pathID(c, "id")
	if !ok {
		return
	}
	lit, err := h.Lifecycle.Get(c.Request.Context(), userID, litID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewLiteratureViewModel(lit))
}

// SoftDelete marks a record deleted. The optional reason comes from the query string.
func (h *LiteratureHandler) SoftDelete(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	litID, ok := pathID(c, "id")
	if !ok {
		return
	}
	lit, err := h.Lifecycle.SoftDelete(c.Request.Context(), litID, userID, plainText(c.Query("reason")))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewLiteratureViewModel(lit))
}

func (h *LiteratureHandler) Restore(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	litID, ok := pathID(c, "id")
	if !ok {
		return
	}
	lit, err := h.Lifecycle.Restore(c.Request.Context(), litID, userID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewLiteratureViewModel(lit))
}

func (h *LiteratureHandler) ListActive(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	items, err := h.Lifecycle.ListActive(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewLiteratureViewModels(items))
}

func (h *LiteratureHandler) ListDeleted(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	items, err := h.Lifecycle.ListDeleted(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewLiteratureViewModels(items))
}

func (h *LiteratureHandler) GroupStats(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	stats, err := h.Accountant.GroupStats(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

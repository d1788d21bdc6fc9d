package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/http/middleware"
	"github.com/smallbiznis/litshare/internal/service"
)

// GroupHandler serves research group membership endpoints.
type GroupHandler struct {
	Groups *service.GroupService
	Logger *zap.Logger
}

func NewGroupHandler(groups *service.GroupService, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{Groups: groups, Logger: logger}
}

type createGroupRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Institution string `json:"institution" binding:"max=200"`
}

// Create makes a group; the response carries the invite code for the new admin.
func (h *GroupHandler) Create(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required.")
		return
	}
	group, err := h.Groups.Create(c.Request.Context(), userID, plainText(req.Name), plainText(req.Institution))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, service.NewGroupViewModel(group, true))
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

func (h *GroupHandler) Join(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req joinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invite_code is required.")
		return
	}
	group, err := h.Groups.Join(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewGroupViewModel(group, false))
}

func (h *GroupHandler) List(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	groups, err := h.Groups.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	out := make([]service.GroupViewModel, 0, len(groups))
	for _, g := range groups {
		out = append(out, service.NewGroupViewModel(g, false))
	}
	c.JSON(http.StatusOK, out)
}

func (h *GroupHandler) Members(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	members, err := h.Groups.Members(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, service.NewMemberViewModels(members))
}

func (h *GroupHandler) RemoveMember(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := h.Groups.RemoveMember(c.Request.Context(), actorID, groupID, userID); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

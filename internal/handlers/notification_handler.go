package handlers

import (
	"net/http"

	"erp-backend/internal/logging"
	"erp-backend/internal/realtime"
	"erp-backend/internal/validation"
	"erp-backend/pkg/utils"

	"github.com/rs/zerolog"
)

type NotificationHandler struct {
	Hub *realtime.Hub
	log zerolog.Logger
}

func NewNotificationHandler(hub *realtime.Hub) *NotificationHandler {
	return &NotificationHandler{Hub: hub, log: logging.For("notifications")}
}

// Pending lists notifications queued for the caller while they were offline.
// ?limit= keeps only the newest n.
func (h *NotificationHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending := h.Hub.Pending(actorOf(r).ID)
	if n := queryInt(r, "limit", 0); n > 0 && n < len(pending) {
		pending = pending[len(pending)-n:]
	}
	utils.JSON(w, http.StatusOK, list("notifications", pending, len(pending)))
}

func (h *NotificationHandler) Connections(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, h.Hub.Stats())
}

type alertRequest struct {
	Level   string `json:"level" validate:"required,oneof=info warning error critical"`
	Message string `json:"message" validate:"required"`
}

func (h *NotificationHandler) SystemAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := validation.Struct(&req); err != nil {
		utils.WriteError(w, err)
		return
	}
	h.Hub.SystemAlert(req.Level, req.Message)
	h.log.Info().Str("level", req.Level).Str("by", actorOf(r).ID).Msg("system alert sent")
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Alert sent"})
}

type directRequest struct {
	UserID  string                 `json:"user_id" validate:"required"`
	Title   string                 `json:"title" validate:"required"`
	Message string                 `json:"message" validate:"required"`
	Data    map[string]interface{} `json:"data"`
}

// Send delivers a direct notification, queueing it if the user is offline.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := validation.Struct(&req); err != nil {
		utils.WriteError(w, err)
		return
	}
	delivered := h.Hub.NotifyUser(req.UserID, req.Title, req.Message, req.Data)
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Notification sent",
		"delivered": delivered,
	})
}

// ServeWS upgrades an authenticated request to a websocket.
func (h *NotificationHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	if err := h.Hub.ServeWS(w, r, actor.ID, actor.Role); err != nil {
		h.log.Warn().Err(err).Str("user_id", actor.ID).Msg("websocket upgrade failed")
	}
}

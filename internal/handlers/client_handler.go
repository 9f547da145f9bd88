package handlers

import (
	"net/http"

	"erp-backend/internal/models"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"
)

type ClientHandler struct {
	Service *services.ClientService
}

func NewClientHandler(s *services.ClientService) *ClientHandler {
	return &ClientHandler{Service: s}
}

func (h *ClientHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req models.CreateClientRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	client, err := h.Service.CreateClient(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Client created successfully",
		"client":  client,
	})
}

func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.Service.GetClient(r.Context(), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"client": client})
}

// ListClients supports ?business_type=installation|manufacturing|both
func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Service.ListClients(r.Context(), r.URL.Query().Get("business_type"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("clients", clients, len(clients)))
}

func (h *ClientHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateClientRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	client, err := h.Service.UpdateClient(r.Context(), pathID(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Client updated successfully",
		"client":  client,
	})
}

func (h *ClientHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteClient(r.Context(), pathID(r)); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Client deleted successfully"})
}

func (h *ClientHandler) ClientProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Service.ClientProjects(r.Context(), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("projects", projects, len(projects)))
}

package handlers

import (
	"net/http"

	"erp-backend/internal/models"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"
)

type LeadHandler struct {
	Service *services.LeadService
}

func NewLeadHandler(s *services.LeadService) *LeadHandler {
	return &LeadHandler{Service: s}
}

func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLeadRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	lead, err := h.Service.CreateLead(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Lead created successfully",
		"lead":    lead,
	})
}

func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Service.GetLead(r.Context(), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"lead": lead})
}

func (h *LeadHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.Service.ListLeads(r.Context(), r.URL.Query().Get("business_type"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("leads", leads, len(leads)))
}

func (h *LeadHandler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateLeadRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	lead, err := h.Service.UpdateLead(r.Context(), pathID(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Lead updated successfully",
		"lead":    lead,
	})
}

func (h *LeadHandler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteLead(r.Context(), pathID(r)); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Lead deleted successfully"})
}

// ConvertLead turns a lead into a client and its first project.
func (h *LeadHandler) ConvertLead(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertLeadRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	conv, err := h.Service.ConvertLead(r.Context(), actorOf(r), pathID(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Lead converted successfully",
		"lead":    conv.Lead,
		"client":  conv.Client,
		"project": conv.Project,
	})
}

func (h *LeadHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	assigned, err := h.Service.AutoAssign(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("assigned", assigned, len(assigned)))
}

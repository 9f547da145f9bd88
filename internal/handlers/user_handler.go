package handlers

import (
	"net/http"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"
)

type UserHandler struct {
	Service *services.UserService
}

func NewUserHandler(s *services.UserService) *UserHandler {
	return &UserHandler{Service: s}
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if req.Role == models.RoleAdmin && !actorOf(r).IsAdmin() {
		utils.WriteError(w, apperr.Forbidden("Only admins can grant the admin role"))
		return
	}

	user, err := h.Service.CreateUser(r.Context(), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    user.Profile(),
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.GetUser(r.Context(), actorOf(r), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"user": user.Profile()})
}

// ListUsers returns all users, optionally filtered by ?role=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, r.URL.Query().Get("role"), "users")
}

func (h *UserHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, models.RoleEmployee, "employees")
}

func (h *UserHandler) ListManagers(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, models.RoleManager, "managers")
}

func (h *UserHandler) listByRole(w http.ResponseWriter, r *http.Request, role, key string) {
	users, err := h.Service.ListUsers(r.Context(), role)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list(key, models.Profiles(users), len(users)))
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	user, err := h.Service.UpdateUser(r.Context(), actorOf(r), pathID(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "User updated successfully",
		"user":    user.Profile(),
	})
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteUser(r.Context(), actorOf(r), pathID(r)); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

func (h *UserHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"statistics": stats})
}

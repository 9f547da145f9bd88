package handlers

import (
	"net/http"

	"erp-backend/internal/apperr"
	"erp-backend/internal/middleware"
	"erp-backend/internal/models"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"
)

type AuthHandler struct {
	Service *services.AuthService
}

func NewAuthHandler(s *services.AuthService) *AuthHandler {
	return &AuthHandler{Service: s}
}

// Login answers with tokens, or with a temp token when 2FA is enabled.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	resp, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Verify2FA(w http.ResponseWriter, r *http.Request) {
	var req models.Verify2FARequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	resp, err := h.Service.Verify2FA(r.Context(), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	resp, err := h.Service.Refresh(r.Context(), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		utils.WriteError(w, apperr.Unauthorized("Authentication required"))
		return
	}
	var req models.LogoutRequest
	if r.ContentLength != 0 {
		if err := utils.Decode(r, &req); err != nil {
			utils.WriteError(w, err)
			return
		}
	}
	if err := h.Service.Logout(r.Context(), claims, req.RefreshToken); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Setup2FA(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Setup2FA(r.Context(), actorOf(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Enable2FA(w http.ResponseWriter, r *http.Request) {
	var req models.TOTPCodeRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.Service.Enable2FA(r.Context(), actorOf(r), &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "2FA enabled successfully"})
}

func (h *AuthHandler) Disable2FA(w http.ResponseWriter, r *http.Request) {
	var req models.TOTPCodeRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.Service.Disable2FA(r.Context(), actorOf(r), &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "2FA disabled successfully"})
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	msg, err := h.Service.RequestPasswordReset(r.Context(), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetConfirmRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.Service.ConfirmPasswordReset(r.Context(), &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.Profile(r.Context(), actorOf(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"user": user.Profile()})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	user, err := h.Service.UpdateProfile(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully",
		"user":    user.Profile(),
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.Service.ChangePassword(r.Context(), actorOf(r), &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

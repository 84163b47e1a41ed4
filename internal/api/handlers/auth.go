// auth.go — обработчики /api/v1/auth и /api/v1/users.
package handlers

import (
	"net/http"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

type registerRequest struct {
	Username    string `json:"username" validate:"max=64"`
	Email       string `json:"email" validate:"max=254"`
	FullName    string `json:"fullName" validate:"max=200"`
	Password    string `json:"password" validate:"max=72"`
	Role        string `json:"role" validate:"max=32"`
	BadgeNumber string `json:"badgeNumber" validate:"max=64"`
	Department  string `json:"department" validate:"max=200"`
}

type loginRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=72"`
}

type userResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

type loginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

// Register — POST /api/v1/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	u, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		FullName:    req.FullName,
		Password:    req.Password,
		Role:        req.Role,
		BadgeNumber: req.BadgeNumber,
		Department:  req.Department,
	})
	if err != nil {
		h.fail(w, r, err, "Registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{Success: true, User: u})
}

// Login — POST /api/v1/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: res.Token, User: res.User})
}

// Me — GET /api/v1/auth/me.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	u, err := h.auth.Me(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/shared"
)

type loginRequest struct {
	Email string `json:"email"`
}

type verifyLoginRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type sessionResponse struct {
	Token string         `json:"token"`
	User  *entities.User `json:"user"`
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, shared.ClientInfoFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, sessionResponse{Token: token, User: user})
}

func (h *HTTPHandler) StartOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	challengeID, err := h.authService.StartLogin(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"challengeId": challengeID})
}

func (h *HTTPHandler) VerifyOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req verifyLoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, token, err := h.authService.VerifyLogin(r.Context(), req.ChallengeID, req.Code, shared.ClientInfoFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, sessionResponse{Token: token, User: user})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if err := h.authService.Logout(r.Context(), user.ID, SessionFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, UserFromContext(r.Context()))
}

func (h *HTTPHandler) Toggle2FA(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Toggle2FA(r.Context(), UserFromContext(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, user)
}

func (h *HTTPHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.RevokeSession(r.Context(), UserFromContext(r.Context()).ID, mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, user)
}

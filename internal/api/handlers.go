package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
)

// PointsBackend is the slice of the points service the handlers call.
type PointsBackend interface {
	Transfer(ctx context.Context, callerID string, req models.TransferRequest) (*models.OperationStatus, error)
	Grant(ctx context.Context, callerID string, req models.GrantRequest) (*models.OperationStatus, error)
	History(ctx context.Context, callerID string) ([]models.PointsEntry, error)
}

// UserBackend is the slice of the user service the handlers call.
type UserBackend interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.OperationStatus, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Me(ctx context.Context, callerID string) (models.UserView, error)
	List(ctx context.Context, callerID string) ([]models.UserView, error)
	UpdateProfile(ctx context.Context, callerID string, req models.ProfileUpdateRequest) (*models.OperationStatus, error)
	AdminUpdate(ctx context.Context, callerID, userID string, req models.AdminUpdateRequest) (*models.OperationStatus, error)
}

type Handler struct {
	points PointsBackend
	users  UserBackend
	log    *zap.Logger
}

func NewHandler(points PointsBackend, users UserBackend, log *zap.Logger) *Handler {
	return &Handler{points: points, users: users, log: log}
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	status, err := h.users.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrPermissionDenied) {
			respondFailure(w, http.StatusForbidden, "Este e-mail não está autorizado a se cadastrar.")
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, status)
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			respondFailure(w, http.StatusUnauthorized, "E-mail ou senha incorretos.")
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	status, err := h.points.Transfer(r.Context(), CallerID(r), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) GrantHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	status, err := h.points.Grant(r.Context(), CallerID(r), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.points.History(r.Context(), CallerID(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.PointsEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	view, err := h.users.Me(r.Context(), CallerID(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.users.List(r.Context(), CallerID(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []models.UserView{}
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *Handler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	status, err := h.users.UpdateProfile(r.Context(), CallerID(r), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) AdminUpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AdminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
		return
	}
	userID := mux.Vars(r)["id"]
	status, err := h.users.AdminUpdate(r.Context(), CallerID(r), userID, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps each failure kind to exactly one status code and
// one user-presentable message. Anything unrecognized is logged in full and
// normalized to an internal error so no low-level detail crosses the
// boundary.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		respondFailure(w, http.StatusUnauthorized, "Você precisa estar autenticado para realizar esta operação.")
	case errors.Is(err, common.ErrPermissionDenied):
		respondFailure(w, http.StatusForbidden, "Esta ação requer privilégios de administrador.")
	case errors.Is(err, common.ErrInvalidArgument):
		respondFailure(w, http.StatusBadRequest, "Os dados enviados são inválidos.")
	case errors.Is(err, common.ErrNotFound):
		respondFailure(w, http.StatusNotFound, "Usuário não encontrado.")
	case errors.Is(err, common.ErrInsufficientBalance):
		respondFailure(w, http.StatusUnprocessableEntity, "Saldo insuficiente.")
	case errors.Is(err, common.ErrAlreadyExists):
		respondFailure(w, http.StatusConflict, "Este e-mail já está em uso.")
	default:
		h.log.Error("internal error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, "Ocorreu um erro interno.")
	}
}

func respondFailure(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.OperationStatus{Success: false, Message: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

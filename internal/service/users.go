package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abarbosa/pontosledger/internal/auth"
	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/ledger"
	"github.com/abarbosa/pontosledger/internal/models"
	"github.com/abarbosa/pontosledger/internal/policy"
	"github.com/abarbosa/pontosledger/internal/store"
)

const minPasswordLength = 6

// UserService owns registration, login, and account edits.
type UserService struct {
	store  *store.Store
	guard  *policy.Guard
	tokens *auth.TokenManager
	log    *zap.Logger
}

func NewUserService(st *store.Store, guard *policy.Guard, tokens *auth.TokenManager, log *zap.Logger) *UserService {
	return &UserService{
		store:  st,
		guard:  guard,
		tokens: tokens,
		log:    log,
	}
}

// Register creates an account for a whitelisted email. The credential and
// the account document are one row here, so creation is atomic; an email
// absent from the whitelist is rejected before anything is written.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.OperationStatus, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", common.ErrInvalidArgument)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrInvalidArgument, minPasswordLength)
	}

	allowed, err := s.store.WhitelistContains(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("whitelist lookup failed: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: email is not authorized to register", common.ErrPermissionDenied)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("password hash failed: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         models.RoleCollaborator,
		TotalPoints:  0,
		PasswordHash: passwordHash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	return &models.OperationStatus{Success: true, Message: "Usuário cadastrado com sucesso!"}, nil
}

// Login verifies credentials and issues a signed token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrInvalidArgument)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, common.ErrUnauthenticated
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  ledger.View(user, time.Now().UTC()),
	}, nil
}

// Me returns the caller's own account view.
func (s *UserService) Me(ctx context.Context, callerID string) (models.UserView, error) {
	caller, err := s.guard.Caller(ctx, callerID)
	if err != nil {
		return models.UserView{}, err
	}
	return ledger.View(caller, time.Now().UTC()), nil
}

// List returns every account with effective balances, for any
// authenticated caller (the directory backs the transfer picker).
func (s *UserService) List(ctx context.Context, callerID string) ([]models.UserView, error) {
	if _, err := s.guard.Caller(ctx, callerID); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, ledger.View(u, now))
	}
	return views, nil
}

// UpdateProfile changes the caller's own display name.
func (s *UserService) UpdateProfile(ctx context.Context, callerID string, req models.ProfileUpdateRequest) (*models.OperationStatus, error) {
	if callerID == "" {
		return nil, common.ErrUnauthenticated
	}
	name, err := ledger.ValidateProfileName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateUserName(ctx, callerID, name); err != nil {
		return nil, err
	}
	return &models.OperationStatus{Success: true, Message: "Perfil atualizado com sucesso!"}, nil
}

// AdminUpdate changes another user's name and role on behalf of an
// administrator.
func (s *UserService) AdminUpdate(ctx context.Context, callerID, userID string, req models.AdminUpdateRequest) (*models.OperationStatus, error) {
	if _, err := s.guard.Admin(ctx, callerID); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: target user id is required", common.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: target user id must be a valid uuid", common.ErrInvalidArgument)
	}
	name, err := ledger.ValidateAdminEdit(req.Name, req.Role)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateUserNameRole(ctx, userID, name, req.Role); err != nil {
		return nil, err
	}

	s.log.Info("user updated by admin",
		zap.String("admin_id", callerID),
		zap.String("user_id", userID),
		zap.String("role", string(req.Role)))
	return &models.OperationStatus{Success: true, Message: "Usuário atualizado com sucesso!"}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreateUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required,min=6"`
	Role        string `json:"role" binding:"required,oneof=admin accountant bookkeeper"`
}

type UpdateUserRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email" binding:"omitempty,email"`
	Phone       string `json:"phone"`
	Role        string `json:"role" binding:"omitempty,oneof=admin accountant bookkeeper"`
	Active      *bool  `json:"active"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserResponse returns User data without exposing sensitive fields
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Tenant      string    `json:"tenant"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, tenant string, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenPair, *UserResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, tenant string, page, limit int) ([]UserResponse, int64, error)
	ListAuditors(ctx context.Context, tenant string) ([]UserResponse, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
}

type userService struct {
	repo repository.UserRepository
	db   *gorm.DB
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, db *gorm.DB) UserService {
	return &userService{repo: repo, db: db}
}

// Helper: parse model to standard json API response
func mapUserToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Tenant:      user.Tenant,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        user.Role,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, tenant string, req CreateUserRequest) (*UserResponse, error) {
	if _, ok := permission.ParseRole(req.Role); !ok {
		return nil, errors.New("invalid role: must be admin, accountant, or bookkeeper")
	}

	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Tenant:      tenant,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    string(hashedPassword),
		Role:        req.Role,
		Active:      true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapUserToResponse(user), nil
}

func (s *userService) signAccessToken(user *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    user.ID.String(),
		"role":   user.Role,
		"tenant": user.Tenant,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(jwtSecret())
}

func jwtSecret() []byte {
	// Mirrors middleware.GetJWTSecret; kept local to avoid an import cycle.
	return []byte(getEnvOr("JWT_SECRET", "default_super_secret_key"))
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (*TokenPair, *UserResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, nil, errors.New("invalid email or password")
	}
	if !user.Active {
		return nil, nil, errors.New("account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, nil, errors.New("invalid email or password")
	}

	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return nil, nil, errors.New("failed to generate token")
	}

	refresh := model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.db.WithContext(ctx).Create(&refresh).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refresh.Token}, mapUserToResponse(user), nil
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var stored model.RefreshToken
	if err := s.db.WithContext(ctx).Preload("User").
		First(&stored, "token = ?", refreshToken).Error; err != nil {
		return nil, errors.New("invalid refresh token")
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, errors.New("refresh token expired")
	}

	accessToken, err := s.signAccessToken(&stored.User)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: stored.Token}, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	return s.db.WithContext(ctx).Where("token = ?", refreshToken).Delete(&model.RefreshToken{}).Error
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return mapUserToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, tenant string, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, tenant, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *mapUserToResponse(&users[i]))
	}
	return res, total, nil
}

func (s *userService) ListAuditors(ctx context.Context, tenant string) ([]UserResponse, error) {
	users, err := s.repo.ListByRole(ctx, tenant, string(permission.RoleBookkeeper))
	if err != nil {
		return nil, err
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *mapUserToResponse(&users[i]))
	}
	return res, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Role != "" {
		if _, ok := permission.ParseRole(req.Role); !ok {
			return nil, errors.New("invalid role")
		}
		user.Role = req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return mapUserToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

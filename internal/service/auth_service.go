package service

import (
	"context"
	"errors"
	"strings"

	"loyalpay/config"
	"loyalpay/internal/auth"
	"loyalpay/internal/domain"
	"loyalpay/internal/models"
	"loyalpay/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists     = errors.New("email already registered")
	ErrUsernameExists  = errors.New("username already taken")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrAccountDisabled = errors.New("account is disabled")
)

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService struct {
	cfg      *config.JWTConfig
	db       *gorm.DB
	userRepo *repository.UserRepository
}

func NewAuthService(cfg *config.JWTConfig, db *gorm.DB) *AuthService {
	return &AuthService{cfg: cfg, db: db, userRepo: repository.NewUserRepository(db)}
}

// Register creates the user and its zero-balance wallet in one transaction.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*models.User, *Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, nil, ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	_, err = s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		return nil, nil, ErrUsernameExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleClient,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, u); err != nil {
			return err
		}
		return repository.NewWalletRepository(tx).Create(ctx, &models.Wallet{UserID: u.ID})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, nil, ErrEmailExists
	}
	if err != nil {
		return nil, nil, err
	}
	tokens, err := s.issue(u)
	if err != nil {
		return u, nil, err
	}
	return u, tokens, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *Tokens, error) {
	u, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCreds
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCreds
	}
	if !u.CanTransact() {
		return nil, nil, ErrAccountDisabled
	}
	tokens, err := s.issue(u)
	if err != nil {
		return nil, nil, err
	}
	return u, tokens, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	userID, err := auth.ParseRefreshToken(s.cfg, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	if !u.CanTransact() {
		return nil, ErrAccountDisabled
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *models.User) (*Tokens, error) {
	access, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(s.cfg, u.ID)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

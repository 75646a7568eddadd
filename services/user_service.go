package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loanflow/apperrors"
	"loanflow/config"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest is the sign-up form
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"max=255"`
	City     string `json:"city" validate:"max=100"`
	Age      int    `json:"age" validate:"omitempty,gte=18,lte=100"`
}

// LoginRequest is the sign-in form
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// FinancialProfileRequest declares income and obligations
type FinancialProfileRequest struct {
	MonthlyIncome  float64               `json:"monthly_income" validate:"gt=0"`
	ExistingEMI    float64               `json:"existing_emi" validate:"gte=0"`
	EmploymentType models.EmploymentType `json:"employment_type" validate:"required,oneof=salaried self-employed business"`
}

// Token is a signed session credential
type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	UserID    uint      `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token Token             `json:"token"`
	User  *models.Applicant `json:"user"`
}

// UserService manages applicant accounts and profiles
type UserService struct {
	repo      database.Repository
	bureau    *BureauService
	locker    utils.Locker
	validator *validator.Validate
	jwtKey    []byte
	jwtTTL    time.Duration
	region    string
}

// NewUserService creates a UserService
func NewUserService(repo database.Repository, bureau *BureauService, locker utils.Locker, cfg *config.Config) *UserService {
	return &UserService{
		repo:      repo,
		bureau:    bureau,
		locker:    locker,
		validator: validator.New(),
		jwtKey:    []byte(cfg.JWT.SecretKey),
		jwtTTL:    time.Duration(cfg.JWT.ExpiresIn) * time.Hour,
		region:    cfg.Bureau.Region,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an applicant. Credit score and pre-approved limit come
// from the bureau.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)

	if _, err := s.repo.GetApplicantByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrEmailTaken
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	phone, err := NormalizePhone(req.Phone, s.region)
	if err != nil {
		return nil, err
	}

	report, err := s.bureau.Lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &models.Applicant{
		FullName:         strings.TrimSpace(req.FullName),
		Email:            email,
		PasswordHash:     hash,
		Phone:            phone,
		Address:          req.Address,
		City:             req.City,
		Age:              req.Age,
		CreditScore:      report.CreditScore,
		PreApprovedLimit: report.PreApprovedLimit,
	}
	if err := s.repo.CreateApplicant(ctx, a); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("create applicant: %w", err)
	}
	utils.LogInfo("registered applicant %d with score %d", a.ID, a.CreditScore)

	token, err := s.GenerateToken(a.ID, a.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: *token, User: a}, nil
}

// Login checks the credentials and issues a token
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	a, err := s.repo.GetApplicantByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(req.Password, a.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.GenerateToken(a.ID, a.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: *token, User: a}, nil
}

// Me returns the applicant's profile
func (s *UserService) Me(ctx context.Context, applicantID uint) (*models.Applicant, error) {
	a, err := s.repo.GetApplicantByID(ctx, applicantID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperrors.ErrApplicantNotFound
	}
	return a, err
}

// UpdateFinancialProfile replaces the declared income picture. Income
// verification from an earlier salary slip is kept.
func (s *UserService) UpdateFinancialProfile(ctx context.Context, applicantID uint, req FinancialProfileRequest) (*models.Applicant, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, applicantLockKey(applicantID))
	if err != nil {
		return nil, fmt.Errorf("lock applicant: %w", err)
	}
	defer unlock()

	a, err := s.Me(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	a.FinancialProfile.MonthlyIncome = req.MonthlyIncome
	a.FinancialProfile.ExistingEMI = req.ExistingEMI
	a.FinancialProfile.EmploymentType = req.EmploymentType
	if err := s.repo.UpdateApplicant(ctx, a); err != nil {
		return nil, fmt.Errorf("update financial profile: %w", err)
	}
	return a, nil
}

// GenerateToken signs an HS256 token carrying user_id and email
func (s *UserService) GenerateToken(userID uint, email string) (*Token, error) {
	expirationTime := time.Now().Add(s.jwtTTL)
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     expirationTime.Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{
		Token:     tokenString,
		Email:     email,
		UserID:    userID,
		ExpiresAt: expirationTime,
	}, nil
}

package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Account struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           string     `json:"phone"`
	Role            string     `json:"role"`
	IsVerified      bool       `json:"is_verified"`
	IsActive        bool       `json:"is_active"`
	ProfileComplete bool       `json:"profile_complete"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
// Accounts created through the OTP signup flow have no hash and are OTP-only.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CheckEmailRequest struct {
	Email string `json:"email"`
}

type SendOTPRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Type  string `json:"type"`
}

// AuthResponse is returned by every flow that establishes a session.
// The refresh credential travels separately as an HTTP-only cookie.
type AuthResponse struct {
	AccessToken string       `json:"accessToken"`
	Account     *AccountInfo `json:"account"`
}

type AccountInfo struct {
	ID              int64  `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Role            string `json:"role"`
	IsVerified      bool   `json:"isVerified"`
	ProfileComplete bool   `json:"profileComplete"`
}

// Valid account roles
const (
	RoleClient    = "client"
	RoleDeveloper = "developer"
)

var validRoles = map[string]bool{
	RoleClient:    true,
	RoleDeveloper: true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

func (r *RegisterRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if r.FirstName == "" {
		return fmt.Errorf("first name is required")
	}
	if r.Phone != "" && !isValidPhone(r.Phone) {
		return fmt.Errorf("invalid phone format")
	}
	if r.Role != "" && !validRoles[r.Role] {
		return fmt.Errorf("invalid role")
	}
	return nil
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

func (r *CheckEmailRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func (r *SendOTPRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if !IsValidOTPPurpose(r.Type) {
		return fmt.Errorf("invalid otp type")
	}
	return nil
}

func (r *VerifyOTPRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if len(r.OTP) != 6 {
		return fmt.Errorf("otp must be 6 digits")
	}
	if !IsValidOTPPurpose(r.Type) {
		return fmt.Errorf("invalid otp type")
	}
	return nil
}

// Helper functions
func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

func isValidPhone(phone string) bool {
	phoneRegex := regexp.MustCompile(`^[\+]?[\d\s\-\(\)]+$`)
	return phoneRegex.MatchString(phone) && len(phone) >= 7
}

// Normalize methods
func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.Role == "" {
		r.Role = RoleClient // Default role
	}
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *CheckEmailRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *SendOTPRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Type = strings.TrimSpace(r.Type)
}

func (r *VerifyOTPRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
	r.Type = strings.TrimSpace(r.Type)
}

// NormalizeEmail lowercases and trims an email address. Account emails are
// stored and matched in this form only.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ToAccountInfo converts Account to AccountInfo (without sensitive data)
func (a *Account) ToAccountInfo() *AccountInfo {
	return &AccountInfo{
		ID:              a.ID,
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Phone:           a.Phone,
		Role:            a.Role,
		IsVerified:      a.IsVerified,
		ProfileComplete: a.ProfileComplete,
	}
}

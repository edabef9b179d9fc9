package exchange

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/jrsteele09/go-dashboard-auth/identity"
)

// Auth endpoint paths, relative to the management backend base URL.
const (
	PathLogin        = "auth/login"
	PathSignUp       = "auth/signup"
	PathRefreshToken = "auth/refresh-token"
	PathRefresh      = "auth/refresh"
	PathLogout       = "auth/logout"
	PathStatus       = "auth/status"
	PathMe           = "auth/me"
)

// Cookie names the backend uses when it keeps tokens in httpOnly cookies.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
)

// Tokens is the access/refresh pair minted by the backend.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (t *Tokens) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("access_token is required")
	}
	if strings.TrimSpace(t.RefreshToken) == "" {
		return fmt.Errorf("refresh_token is required")
	}
	return nil
}

// LoginResult is the body of a successful POST auth/login.
type LoginResult struct {
	Tokens
	User identity.Identity `json:"user"`
}

func (l *LoginResult) Validate() error {
	if err := l.Tokens.Validate(); err != nil {
		return err
	}
	return l.User.Validate()
}

// Status is the cheap probe answer from GET auth/status.
type Status struct {
	IsAuthenticated bool `json:"isAuthenticated"`
	HasRefreshToken bool `json:"hasRefreshToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SignUpRequest registers a new business owner.
type SignUpRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"-"`
}

// Validate enforces the same rules the sign-up form does.
func (r SignUpRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("email %q is invalid", r.Email)
	}
	if err := ValidatePasswordStrength(r.Password); err != nil {
		return err
	}
	if r.Password != r.PasswordConfirmation {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

type signUpResponse struct {
	Message string `json:"message"`
}

func (s *signUpResponse) Validate() error {
	if s.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one character that is not a letter or digit
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case !unicode.IsDigit(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasSpecial {
		return fmt.Errorf("password must contain at least one special character")
	}

	return nil
}

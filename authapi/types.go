package authapi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/token"
	"github.com/jrsteele09/go-erp-portal/users"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username   string     `json:"username" validate:"required,min=3,max=64"`
	Password   string     `json:"password" validate:"required"`
	Email      string     `json:"email" validate:"required,email"`
	FirstName  string     `json:"firstName" validate:"required"`
	LastName   string     `json:"lastName" validate:"required"`
	Role       users.Role `json:"role" validate:"required,oneof=ADMIN INSTRUCTOR STUDENT"`
	StudentID  string     `json:"studentId,omitempty" validate:"required_if=Role STUDENT"`
	EmployeeID string     `json:"employeeId,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login and refresh. Some deployments name the access token "token".
type AuthResponse struct {
	User         *users.UserProfile `json:"user"`
	AccessToken  string             `json:"accessToken"`
	Token        string             `json:"token,omitempty"`
	RefreshToken string             `json:"refreshToken"`
}

// Pair returns the credentials carried by the response.
func (r *AuthResponse) Pair() token.Pair {
	access := r.AccessToken
	if access == "" {
		access = r.Token
	}
	return token.Pair{AccessToken: access, RefreshToken: r.RefreshToken}
}

// Complete reports whether the response carries a user and an access token.
func (r *AuthResponse) Complete() bool {
	return r != nil && r.User != nil && r.Pair().AccessToken != ""
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the login form before it is sent.
func (r LoginRequest) Validate() error {
	return validationError(structValidator().Struct(r))
}

// Normalize trims whitespace and normalises the role.
func (r RegisterRequest) Normalize() RegisterRequest {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Role = users.NormalizeRole(string(r.Role))
	return r
}

// Validate checks the registration form, including password strength.
func (r RegisterRequest) Validate() error {
	if err := validationError(structValidator().Struct(r)); err != nil {
		return err
	}
	if err := users.ValidatePasswordStrength(r.Password); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "%s", err.Error())
	}
	return nil
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.Wrapf(errors.ErrInvalidRequest, "%s", fieldMessage(fe))
	}
	return errors.Wrapf(errors.ErrInvalidRequest, "%s", err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s length must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

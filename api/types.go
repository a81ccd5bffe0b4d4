package api

import (
	"encoding/json"

	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/users"
)

// DefaultTokenExpiresIn is the login expiry hint used when none is given.
const DefaultTokenExpiresIn = "1y"

// Pagination accompanies paged list responses.
type Pagination struct {
	CurrentPage int  `json:"currentPage" yaml:"current_page"`
	TotalPages  int  `json:"totalPages" yaml:"total_pages"`
	HasNextPage bool `json:"hasNextPage" yaml:"has_next_page"`
	HasPrevPage bool `json:"hasPrevPage" yaml:"has_prev_page"`
	TotalItems  int  `json:"totalItems" yaml:"total_items"`
	Limit       int  `json:"limit" yaml:"limit"`
}

// envelope is the shape shared by every response.
type envelope struct {
	Success    *bool           `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
	Errors     []fieldIssue    `json:"errors,omitempty"`
}

type fieldIssue struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Param   string `json:"param"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

// failureDetail is what a failing envelope may carry inside data or error.
type failureDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	TokenExpiresIn string `json:"token_expires_in"`
}

// LoginResponse is the data of a successful POST /auth/login.
type LoginResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         *users.Profile `json:"user,omitempty"`
	Message      string         `json:"message,omitempty"`
}

type SignupRequest struct {
	FirstName    string
	LastName     string
	Email        string
	Password     string
	ProfileImage *products.Upload
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type profileData struct {
	User *users.Profile `json:"user"`
}

type messageData struct {
	Message string `json:"message"`
}

// ProductPage is one page of GET /products.
type ProductPage struct {
	Products   []products.Product
	Pagination Pagination
}

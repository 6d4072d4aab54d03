package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNoUser is returned by operations that need a signed-in user.
	ErrNoUser = errors.New("no user logged in")
	// ErrProviderNotConfigured is returned when federated sign-in is disabled.
	ErrProviderNotConfigured = errors.New("federated sign-in is not configured")
)

// Error is a failure reported by the identity gateway.
type Error struct {
	// Status is the HTTP status code of the gateway response.
	Status int
	// Code is the gateway error code, e.g. EMAIL_EXISTS.
	Code string
	// Detail is the optional text after the code.
	Detail string
}

var friendly = map[string]string{
	"EMAIL_EXISTS":                "The email address is already in use by another account.",
	"OPERATION_NOT_ALLOWED":       "This sign-in method is disabled for this project.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Try again later.",
	"EMAIL_NOT_FOUND":             "There is no account for this email address.",
	"INVALID_PASSWORD":            "The password is invalid.",
	"INVALID_LOGIN_CREDENTIALS":   "Invalid email or password.",
	"USER_DISABLED":               "This account has been disabled.",
	"WEAK_PASSWORD":               "Password should be at least 6 characters.",
	"INVALID_EMAIL":               "The email address is badly formatted.",
	"MISSING_PASSWORD":            "A password is required.",
	"INVALID_ID_TOKEN":            "Your session has expired. Please sign in again.",
	"TOKEN_EXPIRED":               "Your session has expired. Please sign in again.",
	"USER_NOT_FOUND":              "The account no longer exists.",
	"INVALID_REFRESH_TOKEN":       "Your session has expired. Please sign in again.",
	"INVALID_IDP_RESPONSE":        "The Google sign-in response was rejected.",
}

// Error returns a user-readable message for the gateway code.
func (e *Error) Error() string {
	if msg, ok := friendly[e.Code]; ok {
		return msg
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("identity gateway returned status %d", e.Status)
}

// IsCode reports whether err is a gateway Error with the given code.
func IsCode(err error, code string) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Code == code
}

// decodeError reads a gateway error body. Both the Identity Toolkit shape
// {"error":{"message":"CODE : detail"}} and the Secure Token shape
// {"error":"invalid_grant","error_description":"..."} are understood.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var toolkit struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &toolkit); err == nil && toolkit.Error.Message != "" {
		code, detail, _ := strings.Cut(toolkit.Error.Message, " : ")
		return &Error{Status: resp.StatusCode, Code: strings.TrimSpace(code), Detail: strings.TrimSpace(detail)}
	}

	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauth); err == nil && oauth.Error != "" {
		code := strings.ToUpper(oauth.Description)
		if code == "" {
			code = strings.ToUpper(oauth.Error)
		}
		return &Error{Status: resp.StatusCode, Code: code}
	}

	return &Error{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
}

package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/freshbasket/notification-sync/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// LoginResponse is the body returned by a successful admin login.
type LoginResponse struct {
	Token string `json:"token"`
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates as an administrator and, on success, uses the returned token for all later
// requests.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	wrapMsg := "unable to log in"

	if err := common.ValidateEmailAddress(email); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	var result LoginResponse
	body := loginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, "login", http.MethodPost, "/admin/login", body, &result); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	if result.Token == "" {
		return nil, errors.New(wrapMsg + ": no token was returned")
	}

	c.SetToken(result.Token)
	return &result, nil
}

func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "unable to parse the token")
	}
	return claims, nil
}

// TokenExpired returns true if the token's expiration time has passed. The signature isn't
// verified; the API does that. Tokens without an expiration time never expire.
func TokenExpired(token string, now time.Time) (bool, error) {
	claims, err := parseClaims(token)
	if err != nil {
		return false, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, errors.Wrap(err, "unable to get the token expiration time")
	}
	if exp == nil {
		return false, nil
	}
	return !now.Before(exp.Time), nil
}

// TokenEmail returns the email address embedded in the token, or the empty string if there isn't one.
func TokenEmail(token string) string {
	claims, err := parseClaims(token)
	if err != nil {
		return ""
	}
	email, _ := claims["email"].(string)
	return email
}

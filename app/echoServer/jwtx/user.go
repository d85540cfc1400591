// app/echoServer/jwtx/user.go
package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Viktor-Beniukh/library-service-api/model"
)

// Context keys set by the claims middleware.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
)

func claims(c echo.Context) (jwt.MapClaims, error) {
	tok, ok := c.Get("user").(*jwt.Token)
	if !ok || tok == nil {
		return nil, errors.New("no jwt token in context")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid jwt claims")
	}
	return mc, nil
}

func UserIDFromContext(c echo.Context) (int64, error) {
	mc, err := claims(c)
	if err != nil {
		return 0, err
	}
	if f, ok := mc["sub"].(float64); ok && f > 0 {
		return int64(f), nil
	}
	return 0, errors.New("sub missing in claims")
}

func RoleFromContext(c echo.Context) (string, error) {
	mc, err := claims(c)
	if err != nil {
		return "", err
	}
	if s, ok := mc["role"].(string); ok && s != "" {
		return s, nil
	}
	return model.RoleUser, nil
}

// Actor builds the service-level caller from the values the claims
// middleware stored.
func Actor(c echo.Context) model.Actor {
	uid, _ := c.Get(KeyUserID).(int64)
	role, _ := c.Get(KeyRole).(string)
	return model.Actor{UserID: uid, IsStaff: role == model.RoleAdmin}
}

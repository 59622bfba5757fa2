package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type Claims struct {
	Profile Profile `json:"profile"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	ownerKey ctxKey = iota + 1
	usernameKey
)

var ErrNoOwner = errors.New("no owner identity in context")

// SetAuthContext binds the resolved owner identity to the request context.
func SetAuthContext(ctx context.Context, ownerID, username string) context.Context {
	ctx = context.WithValue(ctx, ownerKey, ownerID)
	return context.WithValue(ctx, usernameKey, username)
}

// GetOwnerID returns the owner identity resolved by the access boundary.
func GetOwnerID(c echo.Context) (string, error) {
	ownerID, ok := c.Request().Context().Value(ownerKey).(string)
	if !ok || ownerID == "" {
		return "", ErrNoOwner
	}
	return ownerID, nil
}

func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}

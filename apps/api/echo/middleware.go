package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// requireClaims lets a request through when allow accepts its token claims.
func requireClaims(allow func(c *Claims) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !allow(&claims) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return requireClaims(func(c *Claims) bool { return c.IsAdmin })
}

// builderMiddleware restricts a route to the users who may create reports.
func builderMiddleware() echo.MiddlewareFunc {
	return requireClaims(func(c *Claims) bool { return c.IsAdmin || c.IsAnalyst })
}

package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

// staffMiddleware lets Admins and HODs through.
func staffMiddleware(svc user.Service) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.User.IsStaff)
}

func adminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.User.IsAdmin)
}

// roleMiddleware checks the stored account, not the token claims: a role change or a
// deactivation applies to tokens issued before it.
func roleMiddleware(svc user.Service, allowed func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				if err == errUnauthorized {
					return err
				}
				return errors.Wrap(err, "getting context user")
			}
			if usr.IsActive && allowed(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

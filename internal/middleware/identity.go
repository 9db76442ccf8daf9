package middleware

import "github.com/labstack/echo/v4"

// UserIDKey is the context key JWTAuth stores the caller's user id under.
const UserIDKey = "user_id"

// UserID returns the authenticated caller's id, if any.
func UserID(c echo.Context) (string, bool) {
	s, ok := c.Get(UserIDKey).(string)
	return s, ok && s != ""
}

// currentUserID is UserID with "anon" for unauthenticated requests, as
// used in rate limit and cache keys.
func currentUserID(c echo.Context) string {
	if s, ok := UserID(c); ok {
		return s
	}
	return "anon"
}

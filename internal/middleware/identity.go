package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id set by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	v, ok := c.Get(ctxUserID).(uint64)
	return v, ok && v != 0
}

// Role returns the role set by JWTAuth, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// subjectID accepts the "sub" claim as a JSON number or a decimal string.
func subjectID(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

// identityKey names the caller for rate limiting: the user id when
// authenticated, "anon" otherwise.
func identityKey(c echo.Context) string {
	if uid, ok := UserID(c); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}

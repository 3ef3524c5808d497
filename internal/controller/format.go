package controller

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/marcogenualdo/session-demo/internal/auth"
)

// timeClaims are rendered as "<raw> (<local time>)".
var timeClaims = []string{"iat", "exp", "nbf", "auth_time", "expiresAt", "createdAt", "lastPasswordVerification", "lastFactorVerification"}

// TokenView is one block of the token viewer.
type TokenView struct {
	Key  string
	JSON string
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

// formatTimeClaim turns a unix timestamp or RFC 3339 string into local time.
func formatTimeClaim(value any) (string, bool) {
	switch v := value.(type) {
	case float64:
		return formatDateTime(time.Unix(int64(v), 0)), true
	case int64:
		return formatDateTime(time.Unix(v, 0)), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", false
		}
		return formatDateTime(time.Unix(n, 0)), true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return formatDateTime(t), true
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return formatDateTime(time.Unix(n, 0)), true
		}
	case time.Time:
		return formatDateTime(v), true
	}
	return "", false
}

// formatValue renders a claim value for display.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ",")
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// localizeClaims copies claims, annotating time claims with local time.
func localizeClaims(claims map[string]any) map[string]any {
	out := make(map[string]any, len(claims))
	for name, value := range claims {
		if slices.Contains(timeClaims, name) {
			if local, ok := formatTimeClaim(value); ok && local != "" {
				out[name] = formatValue(value) + " (" + local + ")"
				continue
			}
		}
		out[name] = value
	}
	return out
}

// tokenViews renders every stored token. Refresh tokens have no claims so
// their metadata is shown instead.
func tokenViews(set *auth.TokenSet) []TokenView {
	var views []TokenView
	for _, key := range set.Keys() {
		token := set.Get(key)

		var body map[string]any
		if key == auth.RefreshTokenKey || token.Claims == nil {
			body = map[string]any{"value": token.Value}
			if len(token.Scopes) > 0 {
				body["scopes"] = token.Scopes
			}
			if !token.ExpiresAt.IsZero() {
				body["expiresAt"] = token.ExpiresAt
			}
		} else {
			body = token.Claims
		}

		views = append(views, TokenView{Key: string(key), JSON: renderArg(localizeClaims(body))})
	}
	return views
}

// sessionDebug is the session response as written to the debug panel.
func sessionDebug(info *auth.SessionInfo) map[string]any {
	out := map[string]any{"status": string(info.Status)}
	if !info.CreatedAt.IsZero() {
		out["createdAt"] = info.CreatedAt
	}
	if !info.ExpiresAt.IsZero() {
		out["expiresAt"] = info.ExpiresAt
	}
	if info.Subject != "" {
		out["subject"] = info.Subject
	}
	if len(info.Fields) > 0 {
		out["fields"] = localizeClaims(info.Fields)
	}
	return localizeClaims(out)
}

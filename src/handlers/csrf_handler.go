package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/username/limoney/backend/src/config"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/utils"
)

const csrfCookieName = "_csrf_token"

// GetCSRFToken issues a double-submit token: the same random value goes out
// in a cookie and in the response body, and mutating requests must echo it
// back in the X-CSRF-Token header.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := generateRandomToken()

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		MaxAge:   3600,  // 1 hour
	})

	w.Header().Set("X-CSRF-Token", token)
	utils.SendJSON(w, map[string]string{
		"csrfToken": token,
	}, http.StatusOK)
}

func generateRandomToken() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		logger.L.Error("Error generating random bytes for CSRF token", "error", err)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.StdEncoding.EncodeToString(b)
}

// CSRFMiddleware compares the X-CSRF-Token header against the CSRF cookie on
// every mutating request.
func CSRFMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				setCORSHeaders(w, r)
				w.WriteHeader(http.StatusOK)
				return
			}

			// GET/HEAD never mutate; the token endpoint itself is also exempt.
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken != "" && err == nil && headerToken == cookie.Value {
				next.ServeHTTP(w, r)
				return
			}

			logger.L.Warn("CSRF validation failed",
				"method", r.Method, "path", r.URL.Path,
				"origin", r.Header.Get("Origin"), "hasHeaderToken", headerToken != "")
			setCORSHeaders(w, r)
			utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != config.Cfg.FrontendBaseURL {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token")
}

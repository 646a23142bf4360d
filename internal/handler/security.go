package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/xenking/panel-commerce/internal/domain/user"
)

// userKey is the context key for the resolved user context.
type userKey struct{}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey{}).(*user.User)
	return u, ok
}

// authenticate resolves the X-API-Key header to a user context. Keys are
// stored as HMAC-SHA256 hashes so a leaked database dump does not leak usable
// keys; the pepper lives only in configuration.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		mac := hmac.New(sha256.New, h.pepper)
		mac.Write([]byte(key))
		hash := hex.EncodeToString(mac.Sum(nil))

		u, err := h.users.FindByKeyHash(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

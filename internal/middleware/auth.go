package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kolosafo/bookflow/internal/auth"
	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/store"
)

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"data":    nil,
		"message": message,
		"errors":  []string{message},
		"status":  status,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireUser validates the bearer token, re-checks the account against the
// database, and populates AuthContext. Tokens outlive status changes, so a
// user blocked or deleted after issue is rejected here.
func RequireUser(issuer *auth.Issuer, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := issuer.Parse(token)
			if err != nil || claims.SubjectType != auth.SubjectUser {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.GetByID(claims.Subject)
			if err != nil || user == nil {
				writeAuthError(w, http.StatusUnauthorized, "account not found")
				return
			}
			if user.Status == model.StatusBlocked || !user.IsActive {
				writeAuthError(w, http.StatusForbidden, "account is blocked")
				return
			}

			ac := auth.AuthContext{
				SubjectID:   user.ID,
				SubjectType: auth.SubjectUser,
				Email:       user.Email,
				IsStaff:     user.IsStaff,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireVendorAccount validates the bearer token for vendor dashboard routes.
func RequireVendorAccount(issuer *auth.Issuer, accounts *store.VendorAccountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := issuer.Parse(token)
			if err != nil || claims.SubjectType != auth.SubjectVendor {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			account, err := accounts.GetByID(claims.Subject)
			if err != nil || account == nil || !account.IsActive {
				writeAuthError(w, http.StatusUnauthorized, "account not found")
				return
			}

			ac := auth.AuthContext{
				SubjectID:   account.ID,
				SubjectType: auth.SubjectVendor,
				Email:       account.Email,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireStaff checks that the authenticated user is staff.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsStaff(r.Context()) {
			writeAuthError(w, http.StatusForbidden, "staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

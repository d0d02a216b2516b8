package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"edmanweb/internal/auth"
)

// withAuth requires a bearer token matching the configured hash. Tokens
// that verified once are remembered by digest so bcrypt runs once per
// token, not once per request.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok || !s.tokenValid(token) {
			err := apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("missing or invalid bearer token"),
			}
			s.writeErrorReq(w, r, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenValid(token string) bool {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if _, ok := s.verifiedTokens.Load(key); ok {
		return true
	}
	if !auth.VerifyToken(s.tokenHash, token) {
		return false
	}
	s.verifiedTokens.Store(key, struct{}{})
	return true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/pkg/errutil"
)

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// badInputCodes are service error codes caused by the caller's input.
var badInputCodes = map[string]bool{
	"AUTH_INVALID_EMAIL":     true,
	"AUTH_EMPTY_PASSWORD":    true,
	"AUTH_PASSWORD_TOO_LONG": true,
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, msg, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.svc.SignUp(r.Context(), req.Name, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "email already registered")
		return
	case err != nil && badInputCodes[errutil.Code(err)]:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, r, "signup failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.svc.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		s.internalError(w, r, "login failed", err)
		return
	case token == nil:
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt})
}

// requestToken reads the token from a Bearer header, falling back to a
// {"token": ...} body. A missing token yields "".
func requestToken(r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		return token, nil
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := parseJSON(r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return req.Token, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := requestToken(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Logout(r.Context(), token); err != nil {
		s.internalError(w, r, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	token, err := requestToken(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.svc.ValidateToken(r.Context(), token)
	if err != nil {
		s.internalError(w, r, "token validation failed", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

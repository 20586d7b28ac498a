// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/holomush/authd/internal/auth"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Failure messages returned to clients.
const (
	MsgEmailExists        = "Email already exists"
	MsgUnknownEmail       = "Email does not exist"
	MsgInvalidCredentials = "This email and password combination is not correct"
	MsgInvalidToken       = "Invalid token"
	MsgInvalidBody        = "Invalid request body"
	MsgUnavailable        = "Service unavailable"
	MsgInternal           = "Internal server error"
	MsgNotFound           = "Not found"
	MsgMethodNotAllowed   = "Method not allowed"
)

// Envelope wraps every response body. Success responses carry Data, failure
// responses carry Message.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// UserView is the public projection of a user. It never includes the password hash.
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthData is the payload of a successful register or login.
type AuthData struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

// MeData is the payload of GET /auth/me.
type MeData struct {
	User UserView `json:"user"`
}

func newUserView(u *auth.User) UserView {
	return UserView{
		ID:        u.ID.String(),
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson // client may have disconnected; nothing to do
	json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: StatusSuccess, Data: data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Status: StatusFail, Message: msg})
}

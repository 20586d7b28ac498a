// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api serves the authd JSON HTTP API: registration, login and
// token-authenticated user lookup.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/pkg/errutil"
)

var tracer = otel.Tracer("authd/api")

// MaxBodyBytes limits request bodies.
const MaxBodyBytes = 1 << 20

// Request kinds used as the metrics "type" label.
const (
	KindRegister = "register"
	KindLogin    = "login"
	KindMe       = "me"
	KindUnknown  = "unknown"
)

// Authenticator is the service the API delegates to.
type Authenticator interface {
	Register(ctx context.Context, email, username, password string) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Authenticate(ctx context.Context, token string) (*auth.User, error)
}

// RequestRecorder records a completed request.
type RequestRecorder interface {
	RecordRequest(kind string, status int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, int) {}

// Handler routes API requests.
type Handler struct {
	svc      Authenticator
	logger   *slog.Logger
	recorder RequestRecorder
	mux      *http.ServeMux
	notFound http.Handler
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the request logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRecorder sets the per-request metrics recorder.
func WithRecorder(r RequestRecorder) HandlerOption {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc Authenticator, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:      svc,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.Handle("/auth/register", h.route(KindRegister, http.MethodPost, h.handleRegister))
	h.mux.Handle("/auth/login", h.route(KindLogin, http.MethodPost, h.handleLogin))
	h.mux.Handle("/auth/me", h.route(KindMe, http.MethodGet, h.handleMe))
	h.notFound = h.route(KindUnknown, "", func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, MsgNotFound)
	})
	h.mux.Handle("/", h.notFound)
	return h
}

// ServeHTTP implements http.Handler. Paths that are not already clean get the
// 404 envelope instead of ServeMux's bodyless redirect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "" || r.URL.Path != path.Clean(r.URL.Path) {
		h.notFound.ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// route wraps next with method checking, tracing, metrics and an access log.
// An empty method accepts any.
func (h *Handler) route(kind, method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), "api."+kind)
		defer span.End()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if method != "" && r.Method != method {
			sw.Header().Set("Allow", method)
			writeFail(sw, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		} else {
			next(sw, r.WithContext(ctx))
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", sw.status),
		)
		h.recorder.RecordRequest(kind, sw.status)
		h.logger.DebugContext(ctx, "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		h.fail(w, r, "register failed", err)
		return
	}
	writeSuccess(w, AuthData{User: newUserView(res.User), Token: res.Token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login failed", err)
		return
	}
	writeSuccess(w, AuthData{User: newUserView(res.User), Token: res.Token})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeFail(w, http.StatusUnauthorized, MsgInvalidToken)
		return
	}
	user, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		h.fail(w, r, "authenticate failed", err)
		return
	}
	writeSuccess(w, MeData{User: newUserView(user)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, MsgInvalidBody)
		return false
	}
	return true
}

// fail writes the client-facing failure. Server-side failures are logged with
// their full context; client mistakes only at debug.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, clientMsg := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), h.logger, msg, err)
	} else {
		h.logger.DebugContext(r.Context(), msg, "code", errutil.Code(err))
	}
	writeFail(w, status, clientMsg)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

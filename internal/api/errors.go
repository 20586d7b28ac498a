// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/auth"
)

// statusFor maps a service failure to an HTTP status and client message.
// Unclassified errors become a generic 500; no store or hasher text leaks.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, invalidInputMessage(err)
	case errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, MsgEmailExists
	case errors.Is(err, auth.ErrUnknownEmail):
		return http.StatusUnauthorized, MsgUnknownEmail
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, MsgInvalidCredentials
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, MsgInvalidToken
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, MsgUnavailable
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

func invalidInputMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if field, ok := oopsErr.Context()["field"].(string); ok && field != "" {
			return fmt.Sprintf("Invalid %s", field)
		}
	}
	return "Invalid input"
}

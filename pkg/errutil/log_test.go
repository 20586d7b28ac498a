// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/pkg/errutil"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "", errutil.Code(nil))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
	assert.Equal(t, "AUTH_EMAIL_EXISTS", errutil.Code(oops.Code("AUTH_EMAIL_EXISTS").Errorf("taken")))
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("DB_CONNECT_FAILED").
		With("attempts", 5).
		Errorf("connection refused")

	errutil.LogError(context.Background(), logger, "startup failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "startup failed", entry["msg"])
	assert.Equal(t, "DB_CONNECT_FAILED", entry["code"])
	assert.Contains(t, entry["error"], "connection refused")
	assert.Equal(t, float64(5), entry["context"].(map[string]any)["attempts"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "startup failed", errors.New("standard error"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "standard error", entry["error"])
	assert.NotContains(t, entry, "code")
}

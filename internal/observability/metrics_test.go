// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	inUse atomic.Int64
}

func (p *fakePool) InUse() int64 { return p.inUse.Load() }
func (p *fakePool) Workers() int { return 4 }

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("register", http.StatusOK)
	m.RecordRequest("register", http.StatusConflict)
	m.RecordRequest("register", http.StatusConflict)
	m.RecordRequest("me", http.StatusServiceUnavailable)

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("register", "2xx")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("register", "4xx")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("me", "5xx")), 0)
}

func TestMetrics_ObserveHash(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveHash("hash", 40*time.Millisecond)
	m.ObserveHash("verify", 20*time.Millisecond)
	m.ObserveHash("verify", 20*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HashDuration))
}

func TestMetrics_RegisterPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pool := &fakePool{}
	m.RegisterPool(pool)
	pool.inUse.Store(3)

	expected := `
# HELP authd_hash_pool_in_use Number of hash pool workers currently busy
# TYPE authd_hash_pool_in_use gauge
authd_hash_pool_in_use 3
# HELP authd_hash_pool_workers Configured hash pool capacity
# TYPE authd_hash_pool_workers gauge
authd_hash_pool_workers 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"authd_hash_pool_in_use", "authd_hash_pool_workers"))
}

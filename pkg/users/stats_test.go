package users_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage/memory"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func TestStatsCollector_Refresh(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, users.ApplySeed(ctx, store, store, users.DefaultSeed()))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	collector := users.NewStatsCollector(store, metrics, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))

	require.NoError(t, collector.Refresh(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UsersTotal.WithLabelValues("SA", "Active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UsersTotal.WithLabelValues("DistrictAdministrator", "Active")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.UsersTotal))
}

func TestStatsCollector_StartStop(t *testing.T) {
	store := memory.New()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	collector := users.NewStatsCollector(store, metrics, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))

	assert.Error(t, collector.Start("not a schedule"))

	require.NoError(t, collector.Start("@every 1h"))
	assert.Error(t, collector.Start("@every 1h"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, collector.Stop(ctx))
	assert.NoError(t, collector.Stop(ctx))
}

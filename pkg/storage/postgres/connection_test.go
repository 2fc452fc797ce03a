package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.InfoLevel, &bytes.Buffer{})
}

func TestConnectionConfigFromStorage(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.PostgresURL = "postgres://localhost/schoolhouse"
	cfg.PostgresReplicaURLs = []string{"postgres://replica/schoolhouse"}

	got := ConnectionConfigFromStorage(cfg)
	assert.Equal(t, cfg.PostgresURL, got.PrimaryURL)
	assert.Equal(t, cfg.PostgresReplicaURLs, got.ReplicaURLs)
	assert.Equal(t, cfg.PostgresMaxConns, got.MaxConns)
	assert.Equal(t, cfg.PostgresTimeout, got.Timeout)
	assert.NotZero(t, got.MaxLifetime)
}

func TestNewConnectionManager_RequiresPrimary(t *testing.T) {
	_, err := NewConnectionManager(context.Background(), ConnectionConfig{}, testLogger())
	assert.Error(t, err)
}

func TestConnectionManager_Replica(t *testing.T) {
	primary, _ := newPingMock(t)
	defer primary.Close()

	cm := &ConnectionManager{primary: primary, logger: testLogger()}
	assert.Same(t, primary, cm.Replica(), "falls back to primary")

	r1, _ := newPingMock(t)
	r2, _ := newPingMock(t)
	defer r1.Close()
	defer r2.Close()
	cm.replicas = []*sql.DB{r1, r2}

	seen := map[*sql.DB]int{}
	for i := 0; i < 4; i++ {
		seen[cm.Replica()]++
	}
	assert.Equal(t, 2, seen[r1])
	assert.Equal(t, 2, seen[r2])
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("primary down", func(t *testing.T) {
		primary, mock := newPingMock(t)
		defer primary.Close()
		mock.ExpectPing().WillReturnError(errors.New("refused"))

		cm := &ConnectionManager{primary: primary, logger: testLogger()}
		assert.ErrorContains(t, cm.HealthCheck(context.Background()), "primary unhealthy")
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pmock := newPingMock(t)
		replica, rmock := newPingMock(t)
		defer primary.Close()
		defer replica.Close()
		pmock.ExpectPing()
		rmock.ExpectPing().WillReturnError(errors.New("refused"))

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}, logger: testLogger()}
		assert.ErrorContains(t, cm.HealthCheck(context.Background()), "all replicas unhealthy")
	})

	t.Run("healthy", func(t *testing.T) {
		primary, pmock := newPingMock(t)
		replica, rmock := newPingMock(t)
		defer primary.Close()
		defer replica.Close()
		pmock.ExpectPing()
		rmock.ExpectPing()

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}, logger: testLogger()}
		assert.NoError(t, cm.HealthCheck(context.Background()))
		assert.Len(t, cm.Stats().Replicas, 1)
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newPingMock(t)
	good, gmock := newPingMock(t)
	bad, bmock := newPingMock(t)
	defer primary.Close()
	defer good.Close()

	gmock.ExpectPing()
	bmock.ExpectPing().WillReturnError(errors.New("gone"))
	bmock.ExpectClose()

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{good, bad}, logger: testLogger()}
	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, good, cm.Replica())
}

func TestConnectionManager_Close(t *testing.T) {
	primary, pmock := newPingMock(t)
	replica, rmock := newPingMock(t)
	pmock.ExpectClose()
	rmock.ExpectClose().WillReturnError(errors.New("stuck"))

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}, logger: testLogger()}
	err := cm.Close()
	assert.ErrorContains(t, err, "replica-0")
	assert.Same(t, primary, cm.Replica())
}

func TestConnectionManager_StartMaintenanceStopsWithContext(t *testing.T) {
	primary, _ := newPingMock(t)
	defer primary.Close()

	cm := &ConnectionManager{primary: primary, logger: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := cm.StartMaintenance(ctx, 10*time.Millisecond, nil)
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance loop did not stop")
	}
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDispatch_UnknownAndMissing(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, dispatch(context.Background(), nil, &out, quietLogger()))
	assert.Contains(t, out.String(), "usage")

	out.Reset()
	err := dispatch(context.Background(), []string{"drop-everything"}, &out, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop-everything")
}

func TestToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	var out bytes.Buffer

	err := dispatch(context.Background(), []string{"token", "-secret", secret, "-user", "u-1", "-ttl", "1h"}, &out, quietLogger())
	require.NoError(t, err)

	userID, err := auth.NewHMACVerifier([]byte(secret), "schoolhouse").Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)
}

func TestToken_DefaultsToSystemAdministrator(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	t.Setenv("SCHOOLHOUSE_AUTH_HMAC_SECRET", secret)
	var out bytes.Buffer

	require.NoError(t, dispatch(context.Background(), []string{"token"}, &out, quietLogger()))
	userID, err := auth.NewHMACVerifier([]byte(secret), "schoolhouse").Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, users.DefaultSAID, userID)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("SCHOOLHOUSE_AUTH_HMAC_SECRET", "")
	err := dispatch(context.Background(), []string{"token"}, io.Discard, quietLogger())
	assert.Error(t, err)
}

func TestMigrateAndSeed_RequireDatabase(t *testing.T) {
	t.Setenv("SCHOOLHOUSE_POSTGRES_URL", "")
	t.Setenv("SCHOOLHOUSE_SEED_FILE", "")

	for _, cmd := range []string{"migrate", "seed"} {
		err := dispatch(context.Background(), []string{cmd}, io.Discard, quietLogger())
		require.Error(t, err, cmd)
		assert.Contains(t, err.Error(), "database URL is required")
	}
}

func TestSeed_InvalidFileFailsBeforeConnecting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: x\n    role: Principal\n"), 0o600))

	err := dispatch(context.Background(), []string{"seed", "-file", path, "-db", "postgres://unused"}, io.Discard, quietLogger())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "database URL")
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, setupLogger("nonsense").GetLevel())
}

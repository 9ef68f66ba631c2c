package snowflake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rsa_key.p8")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), 0o600))
	return path
}

func TestBuildDSNPassword(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()
	conn := map[string]any{
		"account":   "myacct",
		"user":      "u1",
		"password":  "secret",
		"database":  "ANALYTICS",
		"warehouse": "WH_SMALL",
	}
	dsn, err := BuildDSN(conn, &cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "u1:secret@myacct")
	assert.Contains(t, dsn, "database=ANALYTICS")
	assert.Contains(t, dsn, "warehouse=WH_SMALL")
}

func TestBuildDSNSchemaDefaultsToPublic(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()
	dsn, err := BuildDSN(map[string]any{
		"account":  "myacct",
		"user":     "u1",
		"password": "secret",
	}, &cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "schema=PUBLIC")
}

func TestBuildDSNConfigFallback(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()
	cfg.SnowflakeAccount = "cfgacct"
	cfg.SnowflakeUser = "cfguser"
	cfg.SnowflakePassword = "cfgpass"
	cfg.SnowflakeRole = "ANALYST"

	dsn, err := BuildDSN(map[string]any{}, &cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "cfguser:cfgpass@cfgacct")
	assert.Contains(t, dsn, "role=ANALYST")

	// Connection-record values beat configuration.
	dsn, err = BuildDSN(map[string]any{"user": "connuser"}, &cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "connuser:cfgpass@cfgacct")
}

func TestBuildDSNKeyPairAuth(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()
	cfg.SnowflakePrivateKeyPath = writeTestKey(t)

	dsn, err := BuildDSN(map[string]any{"account": "myacct", "user": "u1"}, &cfg)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(dsn), "authenticator=snowflake_jwt")
}

func TestBuildDSNErrors(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()

	_, err := BuildDSN(map[string]any{"user": "u1", "password": "p"}, &cfg)
	assert.ErrorIs(t, err, moniker.ErrConfiguration, "missing account")

	_, err = BuildDSN(map[string]any{"account": "a"}, &cfg)
	assert.ErrorIs(t, err, moniker.ErrConfiguration, "missing user")

	_, err = BuildDSN(map[string]any{"account": "a", "user": "u1"}, &cfg)
	assert.ErrorIs(t, err, moniker.ErrAuthentication, "no password and no key")
}

func TestLoadPrivateKeyRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := loadPrivateKey(filepath.Join(t.TempDir(), "absent.p8"))
	assert.ErrorIs(t, err, moniker.ErrAuthentication)

	notPEM := filepath.Join(t.TempDir(), "junk.p8")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a key"), 0o600))
	_, err = loadPrivateKey(notPEM)
	assert.ErrorIs(t, err, moniker.ErrAuthentication)
	assert.Contains(t, err.Error(), "not PEM")
}

func TestBuildQueryUsesLimitDialect(t *testing.T) {
	t.Parallel()

	got := BuildQuery("SELECT * FROM revenue", map[string]any{"limit": 25, "region": "emea"})
	assert.Equal(t, "SELECT * FROM revenue WHERE region = 'emea' LIMIT 25", got)

	// Queries already limited stay untouched.
	got = BuildQuery("SELECT * FROM revenue LIMIT 5", map[string]any{"limit": 25})
	assert.Equal(t, "SELECT * FROM revenue LIMIT 5", got)
}

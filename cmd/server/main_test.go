package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FlagsWin(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FINANCE_CONFIG", "")
	t.Setenv("FINANCE_JWT_SECRET", "secret")
	t.Setenv("FINANCE_PORT", "9000")

	cfg, err := loadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-port", "7000", "-db", ":memory:"})
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DB.DSN)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FINANCE_CONFIG", "")
	t.Setenv("FINANCE_JWT_SECRET", "")

	_, err := loadConfig(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.ErrorContains(t, err, "jwt_secret")
}

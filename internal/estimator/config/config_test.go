package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	viper.Reset()
	t.Setenv("APE_DATABASE_HOST", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ape", cfg.Database.Name)
	assert.Equal(t, 50, cfg.Estimator.HistoryWindow)
	assert.Equal(t, 5, cfg.Estimator.CalibrationS)
	assert.Equal(t, 3, cfg.Estimator.MaxRetries)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("APE_DATABASE_HOST", "db.internal")
	t.Setenv("APE_ESTIMATOR_MAX_RETRIES", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 7, cfg.Estimator.MaxRetries)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5432, Name: "ape", User: "ape", Password: "secret", SSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 dbname=ape user=ape password=secret sslmode=disable", d.DSN())
}

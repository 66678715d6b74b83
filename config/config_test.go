package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/duty-ledger/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "duty.db", cfg.Store.SQLite.Path)
	assert.True(t, cfg.Rollover.Enabled)
	assert.Equal(t, time.Hour, cfg.Rollover.Interval)
	assert.Equal(t, 5*time.Second, cfg.Rollover.StartupDelay)
	assert.False(t, cfg.Discord.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)

	loc, err := cfg.Clock.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: a yaml file selecting postgres and an env override for the port
	path := writeConfig(t, `
server:
  port: 9000
store:
  driver: postgres
  postgres:
    host: db.internal
    name: ledger
    max_conns: 4
clock:
  timezone: America/New_York
rollover:
  interval: 30m
`)
	t.Setenv("DUTY_SERVER_PORT", "9100")
	t.Setenv("DUTY_DISCORD_TOKEN", "secret")
	t.Setenv("DUTY_DISCORD_ADMIN_CHANNEL_ID", "123")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, int32(4), cfg.Store.Postgres.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Rollover.Interval)
	assert.True(t, cfg.Discord.Enabled())
	assert.Equal(t, "123", cfg.Discord.AdminChannelID)
	assert.Equal(t,
		"host=db.internal port=5432 user=postgres password= dbname=ledger sslmode=disable",
		cfg.Store.Postgres.DSN())

	loc, err := cfg.Clock.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Server:   config.ServerConfig{Port: 8080},
			Store:    config.StoreConfig{Driver: config.DriverSQLite, SQLite: config.SQLiteConfig{Path: ":memory:"}},
			Rollover: config.RolloverConfig{Enabled: true, Interval: time.Hour},
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"missing sqlite path", func(c *config.Config) { c.Store.SQLite.Path = "" }, "store.sqlite.path"},
		{"bad timezone", func(c *config.Config) { c.Clock.Timezone = "Mars/Olympus" }, "timezone"},
		{"zero interval", func(c *config.Config) { c.Rollover.Interval = 0 }, "rollover.interval"},
		{"discord without channel", func(c *config.Config) { c.Discord.Token = "t" }, "admin_channel_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

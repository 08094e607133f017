package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 5000, c.Http.Port)
	assert.Equal(t, 250, c.Data.PreviewLimit)
	assert.Equal(t, "prediction_logs", c.Sink.Table)
	assert.Equal(t, filepath.Join("Models", "modelA_CT.json"), c.Models.FamilyA.Thrust)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
http:
  port: 8088
  timeout: 5s
sink:
  driver: sqlite3
  dsn: logs.db
  timeout: 2s
models:
  dir: /srv/propcast
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	for _, key := range []string{"PORT", "SINK_DRIVER", "SINK_DSN", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, c.Http.Port)
	assert.Equal(t, 5*time.Second, c.Http.Timeout)
	assert.Equal(t, "sqlite3", c.Sink.Driver)
	assert.Equal(t, 2*time.Second, c.Sink.Timeout)
	assert.Equal(t, 250, c.Data.PreviewLimit, "unset keys keep defaults")
	assert.Equal(t, filepath.Join("/srv/propcast", "Models", "modelB_EF.json"), c.Resolve(c.Models.FamilyB.Efficiency))
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"MYSQL_HOST":     "db.internal",
		"MYSQL_USER":     "uav",
		"MYSQL_PASSWORD": "secret",
		"MYSQL_DB":       "propellers",
		"MYSQL_PORT":     "3307",
		"PORT":           "9000",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c := Default()
	require.NoError(t, c.applyEnv(lookup))
	assert.Equal(t, "db.internal", c.Sink.Host)
	assert.Equal(t, "uav", c.Sink.User)
	assert.Equal(t, "secret", c.Sink.Password)
	assert.Equal(t, "propellers", c.Sink.Database)
	assert.Equal(t, 3307, c.Sink.Port)
	assert.Equal(t, 9000, c.Http.Port)

	env["MYSQL_PORT"] = "not-a-port"
	assert.Error(t, Default().applyEnv(lookup))
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	c := Default()
	c.Sink.Driver = "oracle"
	assert.Error(t, c.Validate())

	c = Default()
	c.Data.PreviewLimit = 0
	assert.Error(t, c.Validate())
}

// Package config loads service configuration from YAML, .env and the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Models struct {
		Dir     string       `yaml:"dir"`
		FamilyA FamilyConfig `yaml:"family_a"`
		FamilyB FamilyConfig `yaml:"family_b"`
	} `yaml:"models"`
	Data struct {
		Experiment   string `yaml:"experiment"`
		Geometry     string `yaml:"geometry"`
		PreviewLimit int    `yaml:"preview_limit"`
	} `yaml:"data"`
	Rules struct {
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"rules"`
	Matcher struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"matcher"`
	Sink SinkConfig `yaml:"sink"`
}

// FamilyConfig points at one blade family's predictors and reference dataset.
type FamilyConfig struct {
	ModelType  string `yaml:"model_type"`
	Thrust     string `yaml:"thrust"`
	Power      string `yaml:"power"`
	Efficiency string `yaml:"efficiency"`
	Dataset    string `yaml:"dataset"`
}

// SinkConfig selects the prediction log backend.
type SinkConfig struct {
	Driver   string        `yaml:"driver"`
	DSN      string        `yaml:"dsn"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Table    string        `yaml:"table"`
	Migrate  bool          `yaml:"migrate"`
	Timeout  time.Duration `yaml:"timeout"`
}

var sinkDrivers = map[string]bool{
	"mysql":    true,
	"postgres": true,
	"sqlite3":  true,
	"redis":    true,
	"mongo":    true,
}

// Default returns a configuration matching the stock artifact layout.
func Default() *Config {
	var c Config
	c.Http.Port = 5000
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}

	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 30

	c.Models.Dir = "."
	c.Models.FamilyA = FamilyConfig{
		ModelType:  "forest",
		Thrust:     filepath.Join("Models", "modelA_CT.json"),
		Power:      filepath.Join("Models", "modelA_CP.json"),
		Efficiency: filepath.Join("Models", "modelA_EF.json"),
		Dataset:    filepath.Join("Data", "df_modelA_runtime.csv"),
	}
	c.Models.FamilyB = FamilyConfig{
		ModelType:  "forest",
		Thrust:     filepath.Join("Models", "modelB_CT.json"),
		Power:      filepath.Join("Models", "modelB_CP.json"),
		Efficiency: filepath.Join("Models", "modelB_EF.json"),
		Dataset:    filepath.Join("Data", "df_modelB.csv"),
	}

	c.Data.Experiment = filepath.Join("Data", "experiment_brand_diverse.csv")
	c.Data.Geometry = filepath.Join("Data", "geometry_brand_diverse.csv")
	c.Data.PreviewLimit = 250

	c.Matcher.CacheSize = 1024

	c.Sink.Driver = "mysql"
	c.Sink.Port = 3306
	c.Sink.Table = "prediction_logs"
	c.Sink.Timeout = 10 * time.Second
	return &c
}

// Load reads path over the defaults, then applies .env and environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("MYSQL_HOST", &c.Sink.Host)
	setString("MYSQL_USER", &c.Sink.User)
	setString("MYSQL_PASSWORD", &c.Sink.Password)
	setString("MYSQL_DB", &c.Sink.Database)
	if err := setInt("MYSQL_PORT", &c.Sink.Port); err != nil {
		return err
	}
	setString("SINK_DRIVER", &c.Sink.Driver)
	setString("SINK_DSN", &c.Sink.DSN)
	setString("LOG_LEVEL", &c.Log.Level)
	return setInt("PORT", &c.Http.Port)
}

// Validate checks the values main depends on.
func (c *Config) Validate() error {
	if c.Http.Port <= 0 {
		return fmt.Errorf("http.port must be positive, got %d", c.Http.Port)
	}
	if c.Data.PreviewLimit <= 0 {
		return fmt.Errorf("data.preview_limit must be positive, got %d", c.Data.PreviewLimit)
	}
	if !sinkDrivers[c.Sink.Driver] {
		return fmt.Errorf("unsupported sink driver %q", c.Sink.Driver)
	}
	if c.Sink.Table == "" {
		c.Sink.Table = "prediction_logs"
	}
	return nil
}

// Resolve joins a model-relative path onto Models.Dir.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Models.Dir == "" {
		return path
	}
	return filepath.Join(c.Models.Dir, path)
}

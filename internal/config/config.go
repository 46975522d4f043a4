package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string `yaml:"addr"`
	DataDir       string `yaml:"dataDir"`
	DBPath        string `yaml:"dbPath"`
	MaxImageBytes int64  `yaml:"maxImageBytes"`
	TrainCmd      string `yaml:"trainCmd"`
	VerifyCmd     string `yaml:"verifyCmd"`
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		DataDir:       "./data",
		DBPath:        "./trainbox.db",
		MaxImageBytes: 1 << 20,
		TrainCmd:      "trainbox-train",
		VerifyCmd:     "trainbox-verify",
	}
}

// Load reads an optional YAML file over the defaults, then applies env
// overrides on top. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.DBPath = path
	}
	if raw := os.Getenv("MAX_IMAGE_BYTES"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			c.MaxImageBytes = v
		}
	}
	if cmd := os.Getenv("TRAIN_CMD"); cmd != "" {
		c.TrainCmd = cmd
	}
	if cmd := os.Getenv("VERIFY_CMD"); cmd != "" {
		c.VerifyCmd = cmd
	}
}

//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	"github.com/weaviate/mergecommit/usecases/consistency"
)

const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

const (
	DefaultFileExtension    = ".mpk"
	DefaultWriteConcurrency = 4
	DefaultMonitoringPort   = 2112
	indexDirName            = "_index"
)

// Config is the configuration of a mergecommit process.
type Config struct {
	Persistence      Persistence      `json:"persistence" yaml:"persistence"`
	Storage          Storage          `json:"storage" yaml:"storage"`
	ConsistencyCheck ConsistencyCheck `json:"consistency_check" yaml:"consistency_check"`
	Write            Write            `json:"write" yaml:"write"`
	Monitoring       Monitoring       `json:"monitoring" yaml:"monitoring"`
}

type Persistence struct {
	DataPath      string `json:"dataPath" yaml:"dataPath"`
	FileExtension string `json:"fileExtension" yaml:"fileExtension"`
	// IndexPath is the local directory of the committed-file index. Defaults
	// to a directory below DataPath for the local backend.
	IndexPath string `json:"indexPath" yaml:"indexPath"`
}

func (p Persistence) Validate() error {
	if p.DataPath == "" {
		return fmt.Errorf("persistence.dataPath must be set")
	}
	if len(p.FileExtension) < 2 || p.FileExtension[0] != '.' {
		return fmt.Errorf("persistence.fileExtension must start with a dot, got %q", p.FileExtension)
	}
	return nil
}

// IndexDir resolves the directory of the committed-file index.
func (p Persistence) IndexDir() string {
	if p.IndexPath != "" {
		return p.IndexPath
	}
	return filepath.Join(p.DataPath, indexDirName)
}

type Storage struct {
	Backend string `json:"backend" yaml:"backend"`
	S3      S3     `json:"s3" yaml:"s3"`
}

type S3 struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	Bucket   string        `json:"bucket" yaml:"bucket"`
	UseSSL   bool          `json:"use_ssl" yaml:"use_ssl"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

func (s Storage) Validate() error {
	switch s.Backend {
	case BackendLocal, BackendMemory:
		return nil
	case BackendS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket must be set for the s3 backend")
		}
		if s.S3.Timeout < 0 {
			return fmt.Errorf("storage.s3.timeout must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be one of %q, %q or %q, got %q",
			BackendLocal, BackendS3, BackendMemory, s.Backend)
	}
}

func (s S3) FileSystemConfig() filesystem.S3Config {
	return filesystem.S3Config{
		Endpoint: s.Endpoint,
		Bucket:   s.Bucket,
		UseSSL:   s.UseSSL,
		Timeout:  s.Timeout,
	}
}

type ConsistencyCheck struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	MaxChecks       int           `json:"max_checks" yaml:"max_checks"`
}

func (c ConsistencyCheck) GuardConfig() consistency.Config {
	return consistency.Config{
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxChecks:       c.MaxChecks,
	}
}

func (c ConsistencyCheck) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.GuardConfig().Validate(); err != nil {
		return fmt.Errorf("consistency_check: %w", err)
	}
	return nil
}

type Write struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// Defaults returns a Config with every optional value set.
func Defaults() Config {
	guard := consistency.DefaultConfig()
	return Config{
		Persistence: Persistence{FileExtension: DefaultFileExtension},
		Storage:     Storage{Backend: BackendLocal},
		ConsistencyCheck: ConsistencyCheck{
			InitialInterval: guard.InitialInterval,
			MaxInterval:     guard.MaxInterval,
			MaxChecks:       guard.MaxChecks,
		},
		Write:      Write{Concurrency: DefaultWriteConcurrency},
		Monitoring: Monitoring{Port: DefaultMonitoringPort},
	}
}

func (c *Config) Validate() error {
	if err := c.Persistence.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Storage.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.ConsistencyCheck.Validate(); err != nil {
		return configErr(err)
	}
	if c.Write.Concurrency < 1 {
		return configErr(fmt.Errorf("write.concurrency must be at least 1, got %d", c.Write.Concurrency))
	}
	if c.Monitoring.Enabled && (c.Monitoring.Port < 1 || c.Monitoring.Port > 65535) {
		return configErr(fmt.Errorf("monitoring.port must be a valid port, got %d", c.Monitoring.Port))
	}
	return nil
}

// LoadConfig builds the configuration. The load order is
// 1. Defaults
// 2. Config file, if configFileName is set
// 3. Environment variables
// A value set in a later step overrides earlier ones.
func LoadConfig(configFileName string, logger logrus.FieldLogger) (Config, error) {
	config := Defaults()

	if configFileName != "" {
		file, err := os.ReadFile(configFileName)
		if err != nil {
			return Config{}, configErr(err)
		}
		logger.WithField("action", "config_load").
			WithField("config_file_path", configFileName).
			Info("loading config file")
		if err := parseConfigFile(file, configFileName, &config); err != nil {
			return Config{}, configErr(err)
		}
	}

	if err := FromEnv(&config); err != nil {
		return Config{}, configErr(err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func parseConfigFile(file []byte, name string, config *Config) error {
	m := regexp.MustCompile(`.*\.(\w+)$`).FindStringSubmatch(name)
	if len(m) < 2 {
		return fmt.Errorf("config file does not have a file ending, got '%s'", name)
	}

	switch m[1] {
	case "json":
		if err := json.Unmarshal(file, config); err != nil {
			return fmt.Errorf("error unmarshalling the json config file: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(file, config); err != nil {
			return fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension '%s', use .yaml or .json", m[1])
	}

	return nil
}

func configErr(err error) error {
	return fmt.Errorf("invalid config: %w", err)
}

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
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("PERSISTENCE_DATA_PATH"); v != "" {
		config.Persistence.DataPath = v
	}

	if v := os.Getenv("PERSISTENCE_INDEX_PATH"); v != "" {
		config.Persistence.IndexPath = v
	}

	if v := os.Getenv("BASE_FILE_EXTENSION"); v != "" {
		config.Persistence.FileExtension = v
	}

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		config.Storage.S3.Endpoint = v
	}

	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.Storage.S3.Bucket = v
	}

	if v := os.Getenv("S3_USE_SSL"); v != "" {
		config.Storage.S3.UseSSL = enabled(v)
	}

	if err := parseDuration("S3_OPERATION_TIMEOUT", func(d time.Duration) {
		config.Storage.S3.Timeout = d
	}); err != nil {
		return err
	}

	if v := os.Getenv("CONSISTENCY_CHECK_ENABLED"); v != "" {
		config.ConsistencyCheck.Enabled = enabled(v)
	}

	if err := parseDuration("CONSISTENCY_CHECK_INITIAL_INTERVAL", func(d time.Duration) {
		config.ConsistencyCheck.InitialInterval = d
	}); err != nil {
		return err
	}

	if err := parseDuration("CONSISTENCY_CHECK_MAX_INTERVAL", func(d time.Duration) {
		config.ConsistencyCheck.MaxInterval = d
	}); err != nil {
		return err
	}

	if err := parsePositiveInt("CONSISTENCY_CHECK_MAX_CHECKS", func(i int) {
		config.ConsistencyCheck.MaxChecks = i
	}); err != nil {
		return err
	}

	if err := parsePositiveInt("WRITE_CONCURRENCY", func(i int) {
		config.Write.Concurrency = i
	}); err != nil {
		return err
	}

	if enabled(os.Getenv("PROMETHEUS_MONITORING_ENABLED")) {
		config.Monitoring.Enabled = true
	}

	if err := parsePositiveInt("PROMETHEUS_MONITORING_PORT", func(i int) {
		config.Monitoring.Port = i
	}); err != nil {
		return err
	}

	return nil
}

func parsePositiveInt(varName string, cb func(val int)) error {
	if v := os.Getenv(varName); v != "" {
		asInt, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s as int", varName)
		}
		if asInt <= 0 {
			return errors.Errorf("%s must be an integer greater than 0. Got: %v", varName, asInt)
		}
		cb(asInt)
	}
	return nil
}

func parseDuration(varName string, cb func(val time.Duration)) error {
	if v := os.Getenv(varName); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s as duration", varName)
		}
		if d <= 0 {
			return errors.Errorf("%s must be a positive duration. Got: %v", varName, d)
		}
		cb(d)
	}
	return nil
}

func enabled(value string) bool {
	switch value {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}

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

package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

// Options are shared by all commands.
type Options struct {
	ConfigFile  string `long:"config-file" description:"path to a .json or .yaml config file, environment variables override its values"`
	MetricsAddr string `long:"metrics-addr" description:"serve prometheus metrics on this address, overrides the monitoring config"`
}

func main() {
	log := logger()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("write", "run one flush round",
		"Merges the records of a JSON lines file into the file groups of a partition and commits them.",
		&writeCommand{opts: &opts, logger: log, out: os.Stdout})
	parser.AddCommand("cat", "print a data file",
		"Prints the records of a committed data file as JSON lines.",
		&catCommand{opts: &opts, logger: log, out: os.Stdout})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// logger does not parse the regular config object, as logging needs to be
// configured before the configuration is even loaded/parsed.
//
// Defaults to log level info and json format
func logger() *logrus.Logger {
	logger := logrus.New()
	if os.Getenv("LOG_FORMAT") != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "trace":
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// startMetrics registers the metrics and serves them on addr in the
// background. An empty addr disables monitoring.
func startMetrics(addr string, logger logrus.FieldLogger) *monitoring.Metrics {
	if addr == "" {
		return monitoring.NewMetrics(monitoring.NoopRegisterer())
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	enterrors.GoWrapper(func() {
		logger.WithField("action", "metrics_serve").WithField("addr", addr).
			Info("serving prometheus metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.WithField("action", "metrics_serve").WithError(err).
				Error("metrics server stopped")
		}
	}, logger)

	return metrics
}

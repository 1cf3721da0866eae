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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/datafile"
	"github.com/weaviate/mergecommit/adapters/repos/fileindex"
	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	"github.com/weaviate/mergecommit/entities/filegroup"
	"github.com/weaviate/mergecommit/entities/records"
	"github.com/weaviate/mergecommit/usecases/config"
	"github.com/weaviate/mergecommit/usecases/consistency"
	"github.com/weaviate/mergecommit/usecases/mergehandle"
	"github.com/weaviate/mergecommit/usecases/monitoring"
	"github.com/weaviate/mergecommit/usecases/writer"
)

type writeCommand struct {
	opts   *Options
	logger logrus.FieldLogger
	out    io.Writer

	Instant       string `long:"instant" required:"true" description:"instant of the flush round"`
	Partition     string `long:"partition" required:"true" description:"partition the records belong to"`
	FileID        string `long:"file-id" description:"file group to merge into, a new group is started if empty"`
	Records       string `long:"records" required:"true" description:"JSON lines file with one record per line, - for stdin"`
	TaskPartition int    `long:"task-partition" description:"partition id of the writing task"`
	Stage         int    `long:"stage" description:"stage id of the writing task"`
	Attempt       int    `long:"attempt" description:"attempt id of the writing task, 0 for the first attempt"`
}

func (c *writeCommand) Execute(args []string) error {
	cfg, err := config.LoadConfig(c.opts.ConfigFile, c.logger)
	if err != nil {
		return err
	}
	metrics := startMetrics(metricsAddr(c.opts, cfg), c.logger)

	fs, err := newFileSystem(cfg, c.logger, metrics)
	if err != nil {
		return err
	}

	index, err := fileindex.Open(cfg.Persistence.IndexDir())
	if err != nil {
		return err
	}
	defer index.Close()

	guard, err := newGuard(cfg, fs, c.logger, metrics)
	if err != nil {
		return err
	}

	recs, err := c.readRecords()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w := writer.New(writer.Config{
		BasePath:    cfg.Persistence.DataPath,
		Extension:   cfg.Persistence.FileExtension,
		Concurrency: cfg.Write.Concurrency,
	}, fs, index, guard, c.logger, metrics)

	task := mergehandle.TaskContext{
		PartitionID: c.TaskPartition,
		StageID:     c.Stage,
		AttemptID:   c.Attempt,
	}
	statuses, err := w.FlushRound(ctx, c.Instant, task, []writer.Batch{{
		Partition: c.Partition,
		FileID:    c.FileID,
		Records:   recs,
	}})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.out)
	for _, status := range statuses {
		if err := enc.Encode(status); err != nil {
			return errors.Wrap(err, "print write status")
		}
	}
	return nil
}

func (c *writeCommand) readRecords() ([]records.Record, error) {
	if c.Records == "-" {
		return readRecords(os.Stdin)
	}

	f, err := os.Open(c.Records)
	if err != nil {
		return nil, errors.Wrap(err, "open records file")
	}
	defer f.Close()
	return readRecords(f)
}

// readRecords decodes one JSON record per line. Empty lines are skipped.
func readRecords(r io.Reader) ([]records.Record, error) {
	var out []records.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec records.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, errors.Wrapf(err, "parse record on line %d", line)
		}
		if rec.Key == "" {
			return nil, errors.Errorf("record on line %d has no key", line)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read records")
	}
	return out, nil
}

type catCommand struct {
	opts   *Options
	logger logrus.FieldLogger
	out    io.Writer

	Path string `long:"path" required:"true" description:"path of the data file, relative to the data path"`
}

func (c *catCommand) Execute(args []string) error {
	cfg, err := config.LoadConfig(c.opts.ConfigFile, c.logger)
	if err != nil {
		return err
	}

	fs, err := newFileSystem(cfg, c.logger, nil)
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.Persistence.DataPath, c.Path)
	name, err := filegroup.ParseDataFileName(filepath.Base(path), cfg.Persistence.FileExtension)
	if err != nil {
		return err
	}
	logger := c.logger.WithFields(logrus.Fields{
		"action":      "cat",
		"instant":     name.Instant,
		"write_token": name.WriteToken,
		"file_id":     name.FileID,
	})
	if name.IsRollover() {
		logger.WithField("roll_number", name.RollNumber()).
			Warn("reading a rollover file, it is not committed yet")
	}

	r, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	recs, err := datafile.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read %q", path)
	}
	logger.WithField("records", len(recs)).Debug("read data file")

	enc := json.NewEncoder(c.out)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, "print record")
		}
	}
	return nil
}

func metricsAddr(opts *Options, cfg config.Config) string {
	if opts.MetricsAddr != "" {
		return opts.MetricsAddr
	}
	if cfg.Monitoring.Enabled {
		return fmt.Sprintf(":%d", cfg.Monitoring.Port)
	}
	return ""
}

func newFileSystem(cfg config.Config, logger logrus.FieldLogger,
	metrics *monitoring.Metrics,
) (filesystem.FileSystem, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		return filesystem.NewS3(cfg.Storage.S3.FileSystemConfig(), logger, metrics)
	case config.BackendMemory:
		logger.WithField("action", "startup").
			Warn("in-memory storage backend, nothing will be persisted")
		return filesystem.NewMemory(), nil
	default:
		return filesystem.NewLocal(logger, metrics), nil
	}
}

func newGuard(cfg config.Config, fs filesystem.FileSystem, logger logrus.FieldLogger,
	metrics *monitoring.Metrics,
) (consistency.Guard, error) {
	if !cfg.ConsistencyCheck.Enabled {
		return consistency.Disabled{}, nil
	}
	return consistency.NewFailSafe(fs, cfg.ConsistencyCheck.GuardConfig(), logger, metrics)
}

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

// Package consistency waits for filesystem changes to become visible before
// a flush round is acknowledged. Object stores with eventually consistent
// listings may report a freshly renamed file as missing for a while.
package consistency

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/mergecommit/adapters/repos/filesystem"
	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

type Guard interface {
	WaitTillFileAppears(ctx context.Context, path string) error
	WaitTillFileDisappears(ctx context.Context, path string) error
	// WaitTillAllFilesAppear waits for every name in fileNames below dir.
	WaitTillAllFilesAppear(ctx context.Context, dir string, fileNames []string) error
}

type Config struct {
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	// MaxChecks bounds the number of existence checks per wait.
	MaxChecks int `json:"max_checks" yaml:"max_checks"`
}

func DefaultConfig() Config {
	return Config{
		InitialInterval: 400 * time.Millisecond,
		MaxInterval:     20 * time.Second,
		MaxChecks:       7,
	}
}

func (c Config) Validate() error {
	if c.InitialInterval <= 0 {
		return errors.Errorf("initial interval must be positive, got %s", c.InitialInterval)
	}
	if c.MaxInterval < c.InitialInterval {
		return errors.Errorf("max interval %s is below initial interval %s",
			c.MaxInterval, c.InitialInterval)
	}
	if c.MaxChecks < 1 {
		return errors.Errorf("max checks must be at least 1, got %d", c.MaxChecks)
	}
	return nil
}

var errNotYet = errors.New("visibility not reached yet")

// FailSafe polls the filesystem with exponential backoff until the expected
// state is observed or MaxChecks is exhausted. Filesystem errors end the
// wait immediately.
type FailSafe struct {
	fs      filesystem.FileSystem
	cfg     Config
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
}

var _ Guard = (*FailSafe)(nil)

func NewFailSafe(fs filesystem.FileSystem, cfg Config, logger logrus.FieldLogger,
	metrics *monitoring.Metrics,
) (*FailSafe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "consistency guard")
	}
	return &FailSafe{
		fs:      fs,
		cfg:     cfg,
		logger:  logger.WithField("action", "consistency_guard"),
		metrics: metrics,
	}, nil
}

func (g *FailSafe) WaitTillFileAppears(ctx context.Context, path string) error {
	return g.waitFor(ctx, fmt.Sprintf("file %q to appear", path), func() (bool, error) {
		return g.fs.Exists(path)
	})
}

func (g *FailSafe) WaitTillFileDisappears(ctx context.Context, path string) error {
	return g.waitFor(ctx, fmt.Sprintf("file %q to disappear", path), func() (bool, error) {
		exists, err := g.fs.Exists(path)
		return !exists, err
	})
}

func (g *FailSafe) WaitTillAllFilesAppear(ctx context.Context, dir string, fileNames []string) error {
	pending := make([]string, 0, len(fileNames))
	for _, name := range fileNames {
		pending = append(pending, filepath.Join(dir, name))
	}

	return g.waitFor(ctx, fmt.Sprintf("%d files in %q to appear", len(fileNames), dir), func() (bool, error) {
		remaining := pending[:0]
		for _, path := range pending {
			exists, err := g.fs.Exists(path)
			if err != nil {
				return false, err
			}
			if !exists {
				remaining = append(remaining, path)
			}
		}
		pending = remaining
		return len(pending) == 0, nil
	})
}

func (g *FailSafe) policy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialInterval
	eb.MaxInterval = g.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(g.cfg.MaxChecks-1))
}

func (g *FailSafe) waitFor(ctx context.Context, desc string, visible func() (bool, error)) error {
	checks := 0
	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		checks++
		ok, err := visible()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			g.logger.WithField("check", checks).Debugf("waiting for %s", desc)
			return errNotYet
		}
		return nil
	}, backoff.WithContext(g.policy(), ctx))

	switch {
	case err == nil:
		g.metrics.ConsistencyCheck(monitoring.VisibilityVisible)
		return nil
	case errors.Is(err, errNotYet):
		g.metrics.ConsistencyCheck(monitoring.VisibilityTimedOut)
		g.logger.WithField("checks", checks).Warnf("gave up waiting for %s", desc)
		return enterrors.NewNotVisible(fmt.Sprintf("wait for %s after %d checks", desc, checks))
	default:
		g.metrics.ConsistencyCheck(monitoring.VisibilityError)
		return errors.Wrapf(err, "wait for %s", desc)
	}
}

// Disabled trusts the filesystem to be strongly consistent.
type Disabled struct{}

var _ Guard = Disabled{}

func (Disabled) WaitTillFileAppears(context.Context, string) error { return nil }

func (Disabled) WaitTillFileDisappears(context.Context, string) error { return nil }

func (Disabled) WaitTillAllFilesAppear(context.Context, string, []string) error { return nil }

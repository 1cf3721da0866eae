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

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mergecommit"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	CommitNoop    = "noop"
	CommitRenamed = "renamed"
	CommitFailed  = "failed"

	CleanupDeleted = "deleted"
	CleanupMissing = "missing"
	CleanupFailed  = "failed"

	VisibilityVisible  = "visible"
	VisibilityTimedOut = "timed_out"
	VisibilityError    = "error"
)

type Metrics struct {
	FileOps   *prometheus.CounterVec
	FileBytes *prometheus.CounterVec

	RolloverProbes    prometheus.Counter
	StaleFilesDeleted prometheus.Counter
	Commits           *prometheus.CounterVec
	CommitDurations   prometheus.Histogram
	GracefulCleanups  *prometheus.CounterVec

	ConsistencyChecks *prometheus.CounterVec
	FlushRounds       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FileOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Filesystem gateway operations by operation and status",
		}, []string{"operation", "status"}),
		FileBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_bytes_total",
			Help:      "Bytes moved through the filesystem gateway",
		}, []string{"direction"}),
		RolloverProbes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollover_probes_total",
			Help:      "Number of times a merge handle found its target occupied and rolled over",
		}),
		StaleFilesDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_attempt_files_deleted_total",
			Help:      "Data files of a previous task attempt deleted on handle construction",
		}),
		Commits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Merge handle commits by outcome",
		}, []string{"status"}),
		CommitDurations: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of the final delete and rename step of a merge handle",
			Buckets:   prometheus.DefBuckets,
		}),
		GracefulCleanups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graceful_cleanups_total",
			Help:      "Best-effort deletions of in-progress files after a failed close",
		}, []string{"status"}),
		ConsistencyChecks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_checks_total",
			Help:      "Visibility checks performed before a flush round is acknowledged",
		}, []string{"status"}),
		FlushRounds: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_rounds_total",
			Help:      "File group flush rounds by outcome",
		}, []string{"status"}),
	}
}

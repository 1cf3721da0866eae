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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func statusOf(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

func (m *Metrics) FileOp(operation string, err error) {
	if m == nil {
		return
	}

	m.FileOps.With(prometheus.Labels{
		"operation": operation,
		"status":    statusOf(err),
	}).Inc()
}

func (m *Metrics) BytesWritten(n int64) {
	if m == nil {
		return
	}

	m.FileBytes.WithLabelValues("written").Add(float64(n))
}

func (m *Metrics) BytesRead(n int64) {
	if m == nil {
		return
	}

	m.FileBytes.WithLabelValues("read").Add(float64(n))
}

func (m *Metrics) RolloverProbe() {
	if m == nil {
		return
	}

	m.RolloverProbes.Inc()
}

func (m *Metrics) StaleFileDeleted() {
	if m == nil {
		return
	}

	m.StaleFilesDeleted.Inc()
}

// Commit records the outcome of a final commit. Noop commits are not timed.
func (m *Metrics) Commit(status string, took time.Duration) {
	if m == nil {
		return
	}

	m.Commits.WithLabelValues(status).Inc()
	if status != CommitNoop {
		m.CommitDurations.Observe(took.Seconds())
	}
}

func (m *Metrics) GracefulCleanup(status string) {
	if m == nil {
		return
	}

	m.GracefulCleanups.WithLabelValues(status).Inc()
}

func (m *Metrics) ConsistencyCheck(status string) {
	if m == nil {
		return
	}

	m.ConsistencyChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) FlushRound(err error) {
	if m == nil {
		return
	}

	m.FlushRounds.WithLabelValues(statusOf(err)).Inc()
}

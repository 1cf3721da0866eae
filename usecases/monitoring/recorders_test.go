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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewPedanticRegistry())

	t.Run("file ops split by status", func(t *testing.T) {
		m.FileOp("rename", nil)
		m.FileOp("rename", nil)
		m.FileOp("rename", errors.New("boom"))

		assert.Equal(t, float64(2), testutil.ToFloat64(m.FileOps.WithLabelValues("rename", StatusSuccess)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.FileOps.WithLabelValues("rename", StatusFailure)))
	})

	t.Run("noop commits are not timed", func(t *testing.T) {
		m.Commit(CommitNoop, time.Second)
		m.Commit(CommitRenamed, 10*time.Millisecond)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.Commits.WithLabelValues(CommitNoop)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Commits.WithLabelValues(CommitRenamed)))

		var out dto.Metric
		require.NoError(t, m.CommitDurations.Write(&out))
		assert.Equal(t, uint64(1), out.GetHistogram().GetSampleCount())
	})

	t.Run("bytes", func(t *testing.T) {
		m.BytesWritten(10)
		m.BytesRead(4)

		assert.Equal(t, float64(10), testutil.ToFloat64(m.FileBytes.WithLabelValues("written")))
		assert.Equal(t, float64(4), testutil.ToFloat64(m.FileBytes.WithLabelValues("read")))
	})
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.FileOp("exists", nil)
		m.BytesRead(1)
		m.BytesWritten(1)
		m.RolloverProbe()
		m.StaleFileDeleted()
		m.Commit(CommitRenamed, time.Millisecond)
		m.GracefulCleanup(CleanupDeleted)
		m.ConsistencyCheck(VisibilityVisible)
		m.FlushRound(nil)
	})
}

func TestNoopRegistererAcceptsDuplicates(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(NoopRegisterer())
		NewMetrics(NoopRegisterer())
	})
}

// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncCycleDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent reconciling one sync payload.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"initial"},
	)
	roomsProcessedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "rooms_processed_total",
			Help:      "Room deltas processed, by membership category.",
		},
		[]string{"category"},
	)
	eventsInsertedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "timeline_events_inserted_total",
			Help:      "Events newly linked into a timeline chunk.",
		},
	)
	decryptionFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "decryption_failures_total",
			Help:      "Events stored with a typed decryption error attached.",
		},
	)
	timelineGapsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "timeline_gaps_total",
			Help:      "Limited timelines that forced a chunk reset.",
		},
	)
	purgedEchoesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomsync",
			Subsystem: "sync",
			Name:      "purged_local_echoes_total",
			Help:      "Sent-state local echoes garbage collected.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		syncCycleDurationHistogram,
		roomsProcessedCounter,
		eventsInsertedCounter,
		decryptionFailuresCounter,
		timelineGapsCounter,
		purgedEchoesCounter,
	)
}

func observeSyncMetrics(duration time.Duration, isInitialSync bool) {
	syncCycleDurationHistogram.
		WithLabelValues(strconv.FormatBool(isInitialSync)).
		Observe(duration.Seconds())
}

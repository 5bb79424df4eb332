// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChannelMessagesProcessed tracks frames processed on the websocket
	// message channel.
	ChannelMessagesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_processed_total",
			Help:      "Total number of channel frames processed",
		},
		[]string{"cmd", "status"}, // frame cmd, success/failure
	)

	// ChannelDuplicatesDropped tracks request_id duplicates suppressed by
	// the waiter map.
	ChannelDuplicatesDropped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of duplicate frames dropped",
		},
	)

	// ChannelAckTimeouts tracks request/ack correlations that timed out
	// waiting for a response.
	ChannelAckTimeouts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "ack_timeouts_total",
			Help:      "Total number of requests that timed out waiting for an ack",
		},
		[]string{"cmd"},
	)

	// ChannelMessageProcessingDuration tracks dispatch latency for an
	// incoming frame.
	ChannelMessageProcessingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "processing_duration_seconds",
			Help:      "Channel frame processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~205ms
		},
	)

	// ChannelMessageSize tracks frame sizes.
	ChannelMessageSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "message_size_bytes",
			Help:      "Channel frame size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)

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
	// HeartbeatsSent tracks UDP heartbeat requests sent.
	HeartbeatsSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "sent_total",
			Help:      "Total number of heartbeat requests sent",
		},
	)

	// HeartbeatsMissed tracks heartbeat responses not received within the
	// expected window.
	HeartbeatsMissed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "missed_total",
			Help:      "Total number of heartbeat responses missed",
		},
	)

	// HeartbeatChannelDead tracks how many times the heartbeat channel
	// was declared dead after three consecutive misses.
	HeartbeatChannelDead = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "channel_dead_total",
			Help:      "Total number of times the heartbeat channel was declared dead",
		},
	)

	// HeartbeatRoundTrip tracks heartbeat request/response latency.
	HeartbeatRoundTrip = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "round_trip_seconds",
			Help:      "Heartbeat request/response round trip in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)
)

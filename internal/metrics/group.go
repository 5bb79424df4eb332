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
	// GroupRPCsSent tracks group RPC calls sent via the group client.
	GroupRPCsSent = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "rpcs_sent_total",
			Help:      "Total number of group RPC calls sent",
		},
		[]string{"method", "status"},
	)

	// GroupNotificationsReceived tracks inbound group notifications by
	// type (new_message, new_event, group_invite, ...).
	GroupNotificationsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "notifications_received_total",
			Help:      "Total number of group notifications received",
		},
		[]string{"type"},
	)

	// GroupDuplicatesSuppressed tracks notifications suppressed because
	// their cursor/sequence was already applied.
	GroupDuplicatesSuppressed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of duplicate group notifications suppressed",
		},
	)

	// GroupSyncPulled tracks messages/events pulled during incremental
	// cursor-based sync.
	GroupSyncPulled = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "sync_pulled_total",
			Help:      "Total number of items pulled during group sync",
		},
		[]string{"kind"}, // message, event
	)

	// GroupMembersActive tracks the currently-known member count per
	// group the agent belongs to.
	GroupMembersActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "members_active",
			Help:      "Number of known members in a joined group",
		},
		[]string{"group_url"},
	)

	// GroupRPCDuration tracks group RPC round-trip latency.
	GroupRPCDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "rpc_duration_seconds",
			Help:      "Group RPC round trip duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"method"},
	)
)

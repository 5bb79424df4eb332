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
	// SignInsInitiated tracks CA/AP sign-ins started
	SignInsInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "signins_initiated_total",
			Help:      "Total number of sign-in flows initiated",
		},
		[]string{"round"}, // init, verify
	)

	// SignInsCompleted tracks completed sign-ins
	SignInsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "signins_completed_total",
			Help:      "Total number of sign-in flows completed",
		},
		[]string{"status"}, // success, failure
	)

	// SignInsFailed tracks failed sign-ins by error type
	SignInsFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "signins_failed_total",
			Help:      "Total number of failed sign-ins by error type",
		},
		[]string{"error_type"}, // timeout, invalid_signature, network
	)

	// SignInDuration tracks sign-in round-trip durations
	SignInDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "signin_duration_seconds",
			Help:      "Sign-in round duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"round"}, // init, verify
	)
)

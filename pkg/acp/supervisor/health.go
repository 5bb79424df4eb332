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

package supervisor

import "time"

// Status is the overall health verdict of an agent process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// HealthStatus is the full health report returned by the supervisor's
// /health endpoint.
type HealthStatus struct {
	Status         Status          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	State          State           `json:"state"`
	Connectivity   *Connectivity   `json:"connectivity,omitempty"`
	SystemStatus   *SystemHealth   `json:"system,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// Connectivity reports the liveness of the three external links an online
// agent depends on: the CA/AP HTTP endpoint, the UDP heartbeat channel, and
// the websocket message channel.
type Connectivity struct {
	Status           Status `json:"status"`
	EntrypointOK     bool   `json:"entrypoint_ok"`
	HeartbeatAlive   bool   `json:"heartbeat_alive"`
	ChannelConnected bool   `json:"channel_connected"`
	Error            string `json:"error,omitempty"`
}

// SystemHealth reports process resource usage, unrelated to ACP
// connectivity.
type SystemHealth struct {
	Status        Status  `json:"status"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskUsedGB    uint64  `json:"disk_used_gb"`
	DiskTotalGB   uint64  `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	GoRoutines    int     `json:"goroutines"`
	Error         string  `json:"error,omitempty"`
}

// ConnectivityProbe is implemented by the Supervisor; split out as an
// interface so the health checker can be unit tested without a live
// supervisor.
type ConnectivityProbe interface {
	CurrentState() State
	EntrypointReachable() bool
	HeartbeatAlive() bool
	ChannelConnected() bool
}

// Checker aggregates connectivity and system resource checks into a single
// HealthStatus.
type Checker struct {
	probe ConnectivityProbe
}

// NewChecker builds a Checker bound to a live supervisor.
func NewChecker(probe ConnectivityProbe) *Checker {
	return &Checker{probe: probe}
}

// CheckAll runs every check and folds them into one report.
func (c *Checker) CheckAll() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		State:     c.probe.CurrentState(),
		Errors:    make([]string, 0),
	}

	status.Connectivity = c.checkConnectivity()
	if status.Connectivity.Status != StatusHealthy {
		status.Status = status.Connectivity.Status
		if status.Connectivity.Error != "" {
			status.Errors = append(status.Errors, "connectivity: "+status.Connectivity.Error)
		}
	}

	status.SystemStatus = CheckSystem()
	if status.SystemStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy || status.SystemStatus.Status == StatusUnhealthy {
			status.Status = status.SystemStatus.Status
		}
		if status.SystemStatus.Error != "" {
			status.Errors = append(status.Errors, "system: "+status.SystemStatus.Error)
		}
	}

	return status
}

func (c *Checker) checkConnectivity() *Connectivity {
	conn := &Connectivity{
		EntrypointOK:     c.probe.EntrypointReachable(),
		HeartbeatAlive:   c.probe.HeartbeatAlive(),
		ChannelConnected: c.probe.ChannelConnected(),
	}

	switch {
	case conn.EntrypointOK && conn.HeartbeatAlive && conn.ChannelConnected:
		conn.Status = StatusHealthy
	case conn.EntrypointOK:
		conn.Status = StatusDegraded
		conn.Error = "heartbeat or channel link is down"
	default:
		conn.Status = StatusUnhealthy
		conn.Error = "entrypoint unreachable"
	}
	return conn
}

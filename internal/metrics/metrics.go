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

// Package metrics exposes Prometheus collectors shared across the ACP SDK.
// Every subsystem registers its own vars in a sibling file; this file only
// owns the namespace and the registry they all register against.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "acp"

// Registry is the Prometheus registry all SDK collectors register to. It is
// deliberately not prometheus.DefaultRegisterer so an embedding application
// can run its own collectors without name collisions.
var Registry = prometheus.NewRegistry()

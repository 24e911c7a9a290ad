// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apiagent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// apiAgentTracerName is the OTel tracer name for the API agents.
const apiAgentTracerName = "biochatter.apiagent"

func apiAgentTracer() trace.Tracer {
	return otel.Tracer(apiAgentTracerName)
}

var (
	// executionsTotal counts agent runs by terminal state.
	//
	// Labels:
	//   - service: "blast", "oncokb"
	//   - status: "success", "parameterise_error", "submit_error",
	//     "fetch_error", "summarise_error"
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biochatter",
		Subsystem: "apiagent",
		Name:      "executions_total",
		Help:      "External API agent runs by terminal state.",
	}, []string{"service", "status"})

	// executionDuration measures successful end-to-end run time, which for
	// BLAST is dominated by result polling.
	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biochatter",
		Subsystem: "apiagent",
		Name:      "execution_duration_seconds",
		Help:      "End-to-end duration of successful agent runs.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"service"})
)

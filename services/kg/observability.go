// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// kgTracerName is the OTel tracer name for the reflexion agent.
const kgTracerName = "biochatter.kg"

var (
	// loopSteps measures how many generate/revise cycles a session used.
	loopSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "biochatter",
		Subsystem: "kg",
		Name:      "loop_steps",
		Help:      "Generate/revise cycles used per reflexion session.",
		Buckets:   []float64{1, 2, 3, 5, 10, 15, 20},
	})

	// loopOutcomesTotal counts terminal loop states.
	//
	// Labels:
	//   - outcome: "resolved", "budget_exhausted", "failed"
	loopOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biochatter",
		Subsystem: "kg",
		Name:      "loop_outcomes_total",
		Help:      "Terminal reflexion loop states.",
	}, []string{"outcome"})

	// queriesTotal counts graph query executions by status.
	//
	// Labels:
	//   - status: "success", "error"
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biochatter",
		Subsystem: "kg",
		Name:      "queries_total",
		Help:      "Graph query executions by status.",
	}, []string{"status"})

	// proposalRejectionsTotal counts tool payloads rejected before use
	// (unknown tool name, malformed JSON, failed validation).
	proposalRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "biochatter",
		Subsystem: "kg",
		Name:      "proposal_rejections_total",
		Help:      "Model tool payloads rejected by decode/validation.",
	})
)

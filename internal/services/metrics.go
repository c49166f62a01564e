package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// pipelineSteps counts pipeline step outcomes (ok, fallback, failed, skipped).
	pipelineSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbackbot_pipeline_steps_total",
			Help: "Feedback pipeline step executions by outcome.",
		},
		[]string{"step", "outcome"},
	)

	// pipelineStepDur records how long each step ran, including timeouts.
	pipelineStepDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedbackbot_pipeline_step_duration_seconds",
			Help:    "Duration of feedback pipeline steps in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// stateTransitions counts persisted registration moves.
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbackbot_state_transitions_total",
			Help: "Persisted conversation state transitions.",
		},
		[]string{"from", "to"},
	)
)

func init() {
	prometheus.MustRegister(pipelineSteps, pipelineStepDur, stateTransitions)
}

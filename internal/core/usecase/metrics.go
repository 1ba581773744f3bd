package usecase

import "time"

// PipelineMetrics receives per-stage measurements of the chat pipeline.
type PipelineMetrics interface {
	ObserveStage(stage string, duration time.Duration, err error)
	IncFallback(stage, reason string)
	ObserveCandidates(stage string, count int)
}

type noopPipelineMetrics struct{}

func (noopPipelineMetrics) ObserveStage(string, time.Duration, error) {}
func (noopPipelineMetrics) IncFallback(string, string) {}
func (noopPipelineMetrics) ObserveCandidates(string, int) {}

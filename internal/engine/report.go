package engine

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// RoundReport summarizes one committed round: the values every agent holds
// after the commit, in agent-id order, plus population statistics.
type RoundReport struct {
	Round    int           `json:"round"`
	Duration time.Duration `json:"duration_ns"`
	Values   []float64     `json:"values"`
	Mean     float64       `json:"mean"`
	StdDev   float64       `json:"std_dev"`
}

func newRoundReport(round int, took time.Duration, values []float64) RoundReport {
	rep := RoundReport{
		Round:    round,
		Duration: took,
		Values:   values,
	}
	if len(values) > 0 {
		rep.Mean = stat.Mean(values, nil)
	}
	if len(values) > 1 {
		rep.StdDev = stat.StdDev(values, nil)
	}
	return rep
}

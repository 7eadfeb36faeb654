package ingester

import (
	"math"

	"github.com/backupmon/backupmon/internal/ingester/configuration"
)

// GetWorkerInvokeCount returns the number of workers to invoke for a backlog of available results.
//
// Enough workers are invoked to drain the backlog within the worker time limit, and a large backlog gets at least
// one worker per MinIncrement results up to MinLimit. The result never exceeds MaxWorkers and never decreases as
// the backlog grows.
func GetWorkerInvokeCount(config configuration.WorkerConfig, available int) int {
	maxPerWorker := config.MaxPerWorker()
	minWorkers := math.Min(float64(config.MinLimit), math.Floor(float64(available)/float64(config.MinIncrement)))
	workers := math.Max(minWorkers, math.Ceil(float64(available)/maxPerWorker))
	return int(math.Min(float64(config.MaxWorkers), workers))
}

func (i *Ingester) GetWorkerInvokeCount(available int) int {
	return GetWorkerInvokeCount(i.config, available)
}

package runtime

import (
	"fmt"
	"log/slog"
	"time"
)

// RunningMean is the incremental average of a series of samples.
type RunningMean struct {
	Mean  float64
	Count uint64
}

// Add folds one sample into the mean.
func (r *RunningMean) Add(sample float64) {
	r.Mean = (r.Mean*float64(r.Count) + sample) / float64(r.Count+1)
	r.Count++
}

// Tick returns the current time for Benchmark.
func Tick() time.Time {
	return time.Now()
}

// Benchmark adds the elapsed time between start and end, in microseconds,
// to mean and logs the updated average.
func Benchmark(name string, start, end time.Time, mean *RunningMean) {
	benchmark(slog.Default(), name, start, end, mean)
}

func benchmark(log *slog.Logger, name string, start, end time.Time, mean *RunningMean) {
	mean.Add(float64(end.Sub(start).Nanoseconds()) / 1e3)
	log.Info(fmt.Sprintf("%s timing = %g us", name, mean.Mean),
		"name", name, "mean_us", mean.Mean, "samples", mean.Count)
}

// Measure runs fn once and benchmarks it under name.
func Measure(name string, fn func(), mean *RunningMean) {
	start := Tick()
	fn()
	Benchmark(name, start, Tick(), mean)
}

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tickloop/async/dispatch"
)

func main() {
	tasksQueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tasks_queued_total",
		Help: "Total number of tasks queued",
	})
	tasksCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tasks_completed_total",
		Help: "Total number of tasks completed",
	})
	tasksFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tasks_failed_total",
		Help: "Total number of tasks failed",
	})
	activeWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_workers",
		Help: "Current number of pool workers",
	})
	prometheus.MustRegister(tasksQueued, tasksCompleted, tasksFailed, activeWorkers)

	d := dispatch.New(dispatch.Options{
		MinWorkers: 2,
		MaxWorkers: 8,
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Metrics: &dispatch.PrometheusMetrics{
			TasksQueued:    tasksQueued,
			TasksCompleted: tasksCompleted,
			TasksFailed:    tasksFailed,
			ActiveWorkers:  activeWorkers,
		},
	})
	defer d.Stop()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		fmt.Println("prometheus metrics at :2112/metrics")
		http.ListenAndServe(":2112", nil)
	}()

	for i := 0; i < 20; i++ {
		i := i
		f := dispatch.Async(d, func() (int, error) {
			time.Sleep(100 * time.Millisecond)
			return i * i, nil
		})
		f.OnComplete(func(v int) {
			fmt.Printf("task %d -> %d\n", i, v)
		})
	}

	time.Sleep(3 * time.Second)
}

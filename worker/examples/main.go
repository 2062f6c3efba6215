package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tickloop/async/tick"
	"github.com/tickloop/async/worker"
)

func main() {
	loop := new(tick.Loop)

	w := worker.New[string, int, string](worker.Options{Loop: loop})
	w.DoWork = func(run *worker.Run[string, int, string]) {
		for i := 1; i <= 10; i++ {
			if run.Canceled() {
				fmt.Println("work body observed cancel, exiting")
				return
			}
			time.Sleep(50 * time.Millisecond)
			run.SendProgress(i * 10)
		}
		run.SendComplete("processed " + run.Payload())
	}

	w.OnProgress(func(pct int) { fmt.Printf("progress: %d%%\n", pct) })
	w.OnComplete(func(msg string) { fmt.Println(msg) })
	w.OnError(func(err error) { fmt.Println("failed:", err) })

	w.Run("batch-42")

	// Stand-in for the host application's update loop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	loop.Run(ctx, 16*time.Millisecond)
}

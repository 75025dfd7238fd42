package scheduler

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// RunPool executes worker for every id with at most concurrency invocations
// in flight. Every id is attempted exactly once, with no ordering guarantee
// between completions. A failing or panicking worker never takes down its
// siblings; containment of per-item errors is the worker's own job.
func RunPool(ids []uint, concurrency int, worker func(id uint)) {
	if len(ids) == 0 {
		return
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(ids) {
		concurrency = len(ids)
	}

	queue := make(chan uint)
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for id := range queue {
				runOne(id, worker)
			}
		}()
	}

	for _, id := range ids {
		queue <- id
	}
	close(queue)
	wg.Wait()
}

func runOne(id uint, worker func(id uint)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Uint("track_id", id).Interface("panic", r).Msg("worker panicked")
		}
	}()
	worker(id)
}

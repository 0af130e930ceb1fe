package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayusman/posturepilot/internal/posture"
)

// ReplayResult summarizes a recording played through a controller.
type ReplayResult struct {
	Snapshot Snapshot
	// Levels counts classified frames by level. Status events dropped by a
	// full dispatcher queue are missing; see Snapshot.Frames.SinkDrops.
	Levels map[posture.Level]int
}

// Replay starts a session, waits until done is closed and every delivered
// frame has been processed, then stops the session. done is normally
// pose.ReplaySource.Done.
func (c *Controller) Replay(ctx context.Context, done <-chan struct{}) (ReplayResult, error) {
	var mu sync.Mutex
	levels := make(map[posture.Level]int)
	unsubscribe := c.Subscribe(func(e Event) {
		if e.Type == EventStatusUpdated && e.Status != nil {
			mu.Lock()
			levels[e.Status.Level]++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	if err := c.Start(ctx); err != nil {
		return ReplayResult{}, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.Stop()
		return ReplayResult{}, fmt.Errorf("replay interrupted: %w", ctx.Err())
	}

	if err := c.Drain(ctx); err != nil {
		return ReplayResult{}, err
	}
	snap := c.Snapshot()
	if err := c.Stop(); err != nil {
		return ReplayResult{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	return ReplayResult{Snapshot: snap, Levels: levels}, nil
}

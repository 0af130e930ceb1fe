package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/cheggaaa/pb/v3"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/config"
	"github.com/ayusman/posturepilot/internal/pose"
	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/store"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}}`

// runReplay analyzes a recording headlessly: a fresh calibration from the
// first frames, then classification of the rest. Results go to the store.
func runReplay(ctx context.Context, cfg *config.Config, st *store.Store, path string, speed float64) error {
	rec, err := pose.LoadRecordingFile(path)
	if err != nil {
		return err
	}
	if len(rec) == 0 {
		return fmt.Errorf("%s: recording is empty", path)
	}

	src := pose.NewReplaySource(rec)
	src.Speed = speed

	bar := pb.ProgressBarTemplate(progressTemplate).Start(len(rec))
	bar.Set("prefix", "Analyzing")

	appCfg := cfg.AppConfig()
	appCfg.QueueFrames = true
	appCfg.DispatchQueueSize = len(rec)*3 + 16

	// Alerts are summarized in the report instead of delivered.
	ctrl := app.New(appCfg, tap(src, func(pose.Frame) { bar.Increment() }), app.Sinks{
		Persistence: st,
		OnError:     logSinkError,
	})
	defer ctrl.Close()

	result, err := ctrl.Replay(ctx, src.Done())
	bar.Finish()
	if err != nil {
		return err
	}

	printReport(path, result)
	return nil
}

func printReport(path string, r app.ReplayResult) {
	snap := r.Snapshot
	frames := snap.Frames

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Recording\t%s\n", path)
	fmt.Fprintf(w, "Session\t%s\n", snap.SessionID)
	fmt.Fprintf(w, "Frames\t%d (no person %d, skipped %d)\n", frames.Received, frames.NoPerson, frames.Skipped)
	if snap.Baseline != nil {
		fmt.Fprintf(w, "Baseline\tscale %.3f from %d samples\n", snap.Baseline.ScaleFactor, snap.Baseline.Samples)
	} else {
		fmt.Fprintf(w, "Baseline\tnot reached (%d/%d samples)\n", snap.Calibration.Have, snap.Calibration.Need)
	}

	classified := r.Levels[posture.LevelGood] + r.Levels[posture.LevelWarning] + r.Levels[posture.LevelBad]
	for _, level := range []posture.Level{posture.LevelGood, posture.LevelWarning, posture.LevelBad} {
		n := r.Levels[level]
		pct := 0.0
		if classified > 0 {
			pct = 100 * float64(n) / float64(classified)
		}
		fmt.Fprintf(w, "%s\t%d (%.1f%%)\n", level, n, pct)
	}
	w.Flush()

	if frames.SinkDrops > 0 {
		log.Printf("Warning: %d results were dropped by a full sink queue", frames.SinkDrops)
	}
}

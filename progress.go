package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/fishset/fishdedup/services"
)

var stageLabels = map[string]string{
	services.StageHashing:  "Hashing",
	services.StageGrouping: "Grouping",
	services.StageDeleting: "Deleting",
}

// renderProgress draws one bar per pipeline stage and prints stage messages
// to stderr. It closes done once events is drained.
func renderProgress(events <-chan services.ProgressEvent, done chan<- struct{}) {
	defer close(done)

	var (
		bar   *progressbar.ProgressBar
		stage string
	)
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			bar = nil
		}
	}

	for ev := range events {
		if ev.Stage != stage {
			finish()
			stage = ev.Stage
		}
		if ev.Message != "" && bar == nil {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Message)
		}
		if bar == nil && ev.Total > 0 {
			if label, ok := stageLabels[ev.Stage]; ok {
				bar = progressbar.NewOptions64(ev.Total,
					progressbar.OptionSetDescription(label),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionThrottle(100*time.Millisecond),
				)
			}
		}
		if bar != nil {
			_ = bar.Set64(ev.Done)
		}
	}
	finish()
}

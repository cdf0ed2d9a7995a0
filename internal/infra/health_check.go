package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on disk, so the process can
// exit and be restarted by its supervisor with the new build.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	return monitorFile(ctx, "", checkExecInterval)
}

func monitorFile(ctx context.Context, filename string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	entry := log.WithField("component", "exec_monitor")
	if filename == "" {
		exe, err := os.Executable()
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant resolve executable path")
			close(ch)
			return ch
		}
		filename = exe
	}
	stat, err := os.Stat(filename)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant stat executable")
		close(ch)
		return ch
	}
	originalTime := stat.ModTime()

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(filename)
				if err != nil {
					entry.WithField("error", err.Error()).Debug("cant stat executable on tick")
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					select {
					case ch <- struct{}{}:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()
	return ch
}

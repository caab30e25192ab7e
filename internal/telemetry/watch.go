package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch watches logDir for new run_*.json files and invokes onLog with
// each one's decoded Log as it settles (a plain Create/Write event,
// without the debounce a config-reload watcher needs, since telemetry
// files are written once by Write and never edited in place).
func Watch(ctx context.Context, logDir string, onLog func(path string, log Log)) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watch %s: %w", logDir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isRunLog(event.Name) {
				continue
			}
			log, err := readLog(event.Name)
			if err != nil {
				continue // the writer may still be mid-write; the next event picks it up
			}
			onLog(event.Name, log)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isRunLog(path string) bool {
	base := path[strings.LastIndexByte(path, '/')+1:]
	return strings.HasPrefix(base, "run_") && strings.HasSuffix(base, ".json")
}

func readLog(path string) (Log, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Log{}, err
	}
	var log Log
	if err := json.Unmarshal(b, &log); err != nil {
		return Log{}, err
	}
	return log, nil
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tombee/maestro/internal/commands/shared"
)

// debounceDelay coalesces the burst of events editors emit per save.
const debounceDelay = 250 * time.Millisecond

// watchTargets resolves the files whose edits trigger a re-run.
func watchTargets(path, bindings string) []string {
	targets := []string{path}
	if bindings != "" && bindings != path {
		targets = append(targets, bindings)
	}
	return targets
}

// watchAndRun executes run immediately, then re-executes it whenever one of
// the target files changes. Run failures are reported and watching
// continues; only context cancellation ends the loop, with exit code zero.
func watchAndRun(ctx context.Context, cmd *cobra.Command, targets []string, logger *slog.Logger, run func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return shared.NewConfigError("failed to start file watcher", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(targets))
	dirs := make(map[string]bool)
	for _, target := range targets {
		abs, err := filepath.Abs(target)
		if err != nil {
			return shared.NewConfigError(fmt.Sprintf("failed to resolve %s", target), err)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	// Editors replace files by rename, which a file-level watch loses track
	// of. Watching the parent directory catches the recreate.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return shared.NewConfigError(fmt.Sprintf("failed to watch %s", dir), err)
		}
	}

	runAndReport := func() {
		if err := run(ctx); err != nil {
			var exitErr *shared.ExitError
			if errors.As(err, &exitErr) && exitErr.Message == "" {
				// The JSON envelope already carried the outcome.
				return
			}
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderError(err.Error()))
		}
	}

	runAndReport()
	fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderInfo("watching for changes (ctrl-c to stop)"))

	debounce := time.NewTimer(debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("file changed", "file", event.Name, "op", event.Op.String())
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceDelay)
		case <-debounce.C:
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderInfo("change detected, re-running"))
			runAndReport()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

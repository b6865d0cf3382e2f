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
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/maestro/internal/commands/shared"
	"github.com/tombee/maestro/pkg/workflow"
)

// progressPrinter streams step completions to stderr while an execution is
// in flight, leaving stdout clean for the result. It polls the
// orchestrator's live snapshots rather than hooking the engine, so slow
// steps show up as they finish without any engine-side callback plumbing.
type progressPrinter struct {
	w      io.Writer
	orch   *workflow.Orchestrator
	seen   map[string]bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// startProgress begins streaming progress for executions on orch. Returns
// nil when stdout is not a terminal or JSON mode is on; stop is safe to
// call on a nil printer.
func startProgress(cmd *cobra.Command, orch *workflow.Orchestrator) *progressPrinter {
	if shared.GetJSON() || !shared.IsTTY() {
		return nil
	}
	p := &progressPrinter{
		w:      cmd.ErrOrStderr(),
		orch:   orch,
		seen:   make(map[string]bool),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *progressPrinter) loop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			p.sweep()
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep prints every newly terminal step across all in-flight executions.
// Keys include the execution id so watch-mode reruns start fresh.
func (p *progressPrinter) sweep() {
	for _, snap := range p.orch.Executions() {
		for i := range snap.Steps {
			sr := &snap.Steps[i]
			if !stepTerminal(sr.Status) {
				continue
			}
			key := snap.ExecutionID + "/" + sr.StepID
			if p.seen[key] {
				continue
			}
			p.seen[key] = true
			fmt.Fprintln(p.w, "  "+stepLine(sr))
		}
	}
}

func (p *progressPrinter) stop() {
	if p == nil {
		return
	}
	close(p.stopCh)
	<-p.doneCh
}

func stepTerminal(s workflow.StepStatus) bool {
	switch s {
	case workflow.StepStatusCompleted, workflow.StepStatusFailed,
		workflow.StepStatusSkipped, workflow.StepStatusCancelled:
		return true
	}
	return false
}

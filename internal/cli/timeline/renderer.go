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

// Package timeline renders ASCII timelines of workflow executions. Bars are
// positioned on the execution window, so parallel group members show up as
// overlapping bars and retry stalls as long ones.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tombee/maestro/pkg/workflow"
	"golang.org/x/term"
)

const (
	// MinTerminalWidth is the minimum supported terminal width
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars
	DefaultBarWidth = 40
	// StatusIconOK indicates successful completion
	StatusIconOK = "✓"
	// StatusIconError indicates failure
	StatusIconError = "✗"
	// StatusIconSkipped indicates a step skipped by its conditions
	StatusIconSkipped = "•"
	// StatusIconCancelled indicates cancellation mid-flight
	StatusIconCancelled = "⚠"
)

// Renderer renders ASCII timelines from recorded step results.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a new timeline renderer with terminal width detection.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(0)
	if err != nil {
		// Default to 100 if detection fails
		width = 100
	}

	if width < MinTerminalWidth {
		return nil, fmt.Errorf("terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// Reserve space for the step name, duration, status, and note columns.
	barWidth := width - 50
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}

	return &Renderer{
		Width:    width,
		BarWidth: barWidth,
	}, nil
}

// Render draws one bar per recorded step, aligned on the execution window.
func (r *Renderer) Render(workflowID string, steps []workflow.StepResult) (string, error) {
	if len(steps) == 0 {
		return "", fmt.Errorf("no steps to render")
	}

	minTime, maxTime := bounds(steps)
	total := maxTime.Sub(minTime)
	window := total
	if window <= 0 {
		// Dry runs and cache-only executions can complete within one clock
		// tick; a positive window keeps the bar math finite.
		window = time.Nanosecond
	}

	var sb strings.Builder

	border := strings.Repeat("─", r.Width-2)
	sb.WriteString("┌" + border + "┐\n")

	header := fmt.Sprintf("│ Workflow: %-*s Total: %s  │\n",
		r.Width-28,
		truncate(workflowID, r.Width-28),
		formatDuration(total))
	sb.WriteString(header)

	sb.WriteString("├" + border + "┤\n")

	for i := range steps {
		sb.WriteString(r.renderStep(&steps[i], minTime, window))
	}

	sb.WriteString("└" + border + "┘\n")

	return sb.String(), nil
}

// bounds finds the earliest start and latest end time across all steps.
func bounds(steps []workflow.StepResult) (time.Time, time.Time) {
	minTime := steps[0].StartedAt
	maxTime := steps[0].CompletedAt

	for i := range steps {
		if steps[i].StartedAt.Before(minTime) {
			minTime = steps[i].StartedAt
		}
		if steps[i].CompletedAt.After(maxTime) {
			maxTime = steps[i].CompletedAt
		}
	}

	return minTime, maxTime
}

// renderStep generates a timeline line for a single step result.
func (r *Renderer) renderStep(sr *workflow.StepResult, minTime time.Time, window time.Duration) string {
	startPos := int(float64(sr.StartedAt.Sub(minTime)) / float64(window) * float64(r.BarWidth))
	barLength := int(float64(sr.Duration()) / float64(window) * float64(r.BarWidth))

	if startPos < 0 {
		startPos = 0
	}
	if startPos >= r.BarWidth {
		startPos = r.BarWidth - 1
	}
	if barLength < 1 {
		barLength = 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	bar := make([]rune, r.BarWidth)
	for i := 0; i < r.BarWidth; i++ {
		if i >= startPos && i < startPos+barLength {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}

	line := fmt.Sprintf("│ %-20s %s  %6s  %s  %-10s │\n",
		truncate(sr.StepID, 20),
		string(bar),
		formatDuration(sr.Duration()),
		statusIcon(sr.Status),
		note(sr),
	)

	return line
}

func statusIcon(status workflow.StepStatus) string {
	switch status {
	case workflow.StepStatusFailed:
		return StatusIconError
	case workflow.StepStatusSkipped:
		return StatusIconSkipped
	case workflow.StepStatusCancelled:
		return StatusIconCancelled
	default:
		return StatusIconOK
	}
}

// note fills the trailing column with how the result was produced.
func note(sr *workflow.StepResult) string {
	switch {
	case sr.Cached:
		return "cached"
	case sr.Attempts > 1:
		return fmt.Sprintf("attempt %d", sr.Attempts)
	case sr.Status == workflow.StepStatusSkipped:
		return "skipped"
	default:
		return ""
	}
}

// truncate shortens a string to maxLen with ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

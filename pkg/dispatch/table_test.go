package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/workflow"
)

func echoHandler(_ context.Context, input map[string]any) (map[string]any, error) {
	return input, nil
}

func TestTable_RegisterAndInvoke(t *testing.T) {
	table := NewTable()
	if err := table.Register("catalog", "searchProducts", func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"query": input["query"], "count": 2}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out, err := table.Invoke(context.Background(), "catalog", "searchProducts", map[string]any{"query": "shoes"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out["query"] != "shoes" || out["count"] != 2 {
		t.Errorf("Invoke() = %v, want the handler's output", out)
	}
}

func TestTable_UnknownPair(t *testing.T) {
	table := NewTable()
	table.Register("catalog", "searchProducts", echoHandler)

	tests := []struct {
		name            string
		service, action string
	}{
		{"unknown service", "pricing", "quote"},
		{"unknown action on known service", "catalog", "quote"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Invoke(context.Background(), tt.service, tt.action, nil)
			var derr *errors.DispatchError
			if !errors.As(err, &derr) {
				t.Fatalf("Invoke() error = %T, want *errors.DispatchError", err)
			}
			if derr.Code != errors.CodeUnknownAction {
				t.Errorf("Code = %q, want %q", derr.Code, errors.CodeUnknownAction)
			}
			if errors.KindOf(err) != errors.KindValidation {
				t.Errorf("KindOf() = %v, unknown pairs must not be retryable", errors.KindOf(err))
			}
		})
	}
}

func TestTable_RegistrationErrors(t *testing.T) {
	table := NewTable()
	table.Register("catalog", "searchProducts", echoHandler)

	tests := []struct {
		name            string
		service, action string
		fn              HandlerFunc
	}{
		{"empty service", "", "act", echoHandler},
		{"empty action", "svc", "", echoHandler},
		{"nil handler", "svc", "act", nil},
		{"duplicate pair", "catalog", "searchProducts", echoHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.Register(tt.service, tt.action, tt.fn)
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Register() error = %T (%v), want *errors.ValidationError", err, err)
			}
		})
	}
}

func TestTable_Listings(t *testing.T) {
	table := NewTable()
	table.RegisterWithDescription("pricing", "quote", "Quote a cart total", echoHandler)
	table.Register("pricing", "applyDiscount", echoHandler)
	table.Register("catalog", "searchProducts", echoHandler)

	services := table.Services()
	if len(services) != 2 || services[0] != "catalog" || services[1] != "pricing" {
		t.Errorf("Services() = %v, want sorted [catalog pricing]", services)
	}

	actions := table.Actions("pricing")
	if len(actions) != 2 {
		t.Fatalf("len(Actions(pricing)) = %d, want 2", len(actions))
	}
	if actions[0].Action != "applyDiscount" || actions[1].Action != "quote" {
		t.Errorf("Actions() = %v, want sorted by action name", actions)
	}
	if actions[1].Description != "Quote a cart total" {
		t.Errorf("Description = %q, want the registered summary", actions[1].Description)
	}

	if got := table.Actions("ghost"); len(got) != 0 {
		t.Errorf("Actions(ghost) = %v, want empty", got)
	}
}

func TestTable_ValidateWorkflow(t *testing.T) {
	table := NewTable()
	table.Register("cart", "getAbandonedCart", echoHandler)
	table.Register("notifications", "sendReminder", echoHandler)

	wf := &workflow.Workflow{
		ID:   "cart-recovery",
		Name: "Cart Recovery",
		Steps: []*workflow.Step{
			{ID: "fetch", Service: "cart", Action: "getAbandonedCart", OnSuccess: "remind"},
			{ID: "remind", Service: "notifications", Action: "sendReminder"},
		},
	}
	if err := table.ValidateWorkflow(wf); err != nil {
		t.Fatalf("ValidateWorkflow() error = %v, want nil", err)
	}

	wf.Steps[1].Action = "sendPush"
	err := table.ValidateWorkflow(wf)
	var verr *errors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateWorkflow() error = %T, want *errors.ValidationError", err)
	}
	if verr.Field != "steps[1]" {
		t.Errorf("Field = %q, want steps[1]", verr.Field)
	}

	if err := table.ValidateWorkflow(nil); err == nil {
		t.Error("ValidateWorkflow(nil) = nil, want an error")
	}
}

func TestTable_RateLimit(t *testing.T) {
	table := NewTable().WithRateLimit("catalog", 1000, 1)
	table.Register("catalog", "searchProducts", echoHandler)

	// Burst token first, then a short wait for the second token.
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := table.Invoke(context.Background(), "catalog", "searchProducts", nil); err != nil {
			t.Fatalf("Invoke() #%d error = %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("two invocations took %v, limiter should pace at ~1ms", elapsed)
	}
}

func TestTable_RateLimitCancelled(t *testing.T) {
	table := NewTable().WithRateLimit("catalog", 0.001, 1)
	table.Register("catalog", "searchProducts", echoHandler)

	// Drain the burst token.
	if _, err := table.Invoke(context.Background(), "catalog", "searchProducts", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := table.Invoke(ctx, "catalog", "searchProducts", nil)
	var cerr *errors.CancelledError
	if !errors.As(err, &cerr) {
		t.Fatalf("Invoke() error = %T (%v), want *errors.CancelledError", err, err)
	}
}

func TestTable_RateLimitDeadlineTooShort(t *testing.T) {
	table := NewTable().WithRateLimit("catalog", 0.001, 1)
	table.Register("catalog", "searchProducts", echoHandler)

	if _, err := table.Invoke(context.Background(), "catalog", "searchProducts", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	// The next token is ~1000s away; a 10ms deadline cannot cover it, and
	// the limiter reports that without blocking.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := table.Invoke(ctx, "catalog", "searchProducts", nil)
	var derr *errors.DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("Invoke() error = %T (%v), want *errors.DispatchError", err, err)
	}
	if derr.Code != "RATE_LIMITED" || !derr.Retryable {
		t.Errorf("error = %+v, want a retryable RATE_LIMITED dispatch error", derr)
	}
}

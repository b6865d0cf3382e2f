package workflow

import "time"

// Built-in template ids seeded into every registry unless disabled.
const (
	TemplateShoppingAssistant = "shopping-assistant"
	TemplateCartRecovery      = "cart-recovery"
	TemplatePersonalizedFeed  = "personalized-feed"
	TemplateFraudCheck        = "fraud-check"
)

// builtinTemplates returns the seed workflow definitions. They double as
// living documentation of the representative graph shapes: a plain chain,
// a guarded chain with a fallback branch, a parallel fan-out merged
// downstream, and a retry-heavy chain with a skip error policy.
func builtinTemplates() []*Workflow {
	return []*Workflow{
		shoppingAssistantTemplate(),
		cartRecoveryTemplate(),
		personalizedFeedTemplate(),
		fraudCheckTemplate(),
	}
}

// shoppingAssistantTemplate is a linear chain: search, rank, summarize.
// The search step memoizes per user and query context.
func shoppingAssistantTemplate() *Workflow {
	return &Workflow{
		ID:          TemplateShoppingAssistant,
		Name:        "Shopping Assistant",
		Description: "Search the catalog, rank results for the user, and generate a conversational summary.",
		Version:     "1.0.0",
		Timeout:     Duration(10 * time.Second),
		Metadata:    map[string]string{"category": "commerce"},
		Steps: []*Step{
			{
				ID:      "search-products",
				Name:    "Search products",
				Service: "catalog",
				Action:  "searchProducts",
				Input: InputSpec{
					Static:      map[string]any{"limit": 20},
					FromContext: "query",
				},
				Cache: &CacheSpec{
					Enabled: true,
					TTL:     Duration(5 * time.Minute),
				},
				Timeout:   Duration(3 * time.Second),
				OnSuccess: "rank-products",
			},
			{
				ID:      "rank-products",
				Name:    "Rank products",
				Service: "personalization",
				Action:  "rankProducts",
				Input: InputSpec{
					FromStep: "search-products",
				},
				Timeout:   Duration(3 * time.Second),
				OnSuccess: "summarize-results",
			},
			{
				ID:      "summarize-results",
				Name:    "Summarize results",
				Service: "content",
				Action:  "generateSummary",
				Input: InputSpec{
					FromStep: "rank-products",
				},
				Timeout: Duration(4 * time.Second),
			},
		},
	}
}

// cartRecoveryTemplate is a guarded chain behind a feature flag: the
// incentive and reminder only run for carts the fetch step reports
// abandoned, and delivery failures divert to an analytics branch.
func cartRecoveryTemplate() *Workflow {
	return &Workflow{
		ID:          TemplateCartRecovery,
		Name:        "Cart Recovery",
		Description: "Detect an abandoned cart, compute a recovery incentive, and send a reminder.",
		Version:     "1.0.0",
		Timeout:     Duration(15 * time.Second),
		Metadata:    map[string]string{"category": "commerce"},
		Triggers: []Trigger{
			{Type: TriggerFeatureFlag, Key: "cart-recovery-ai"},
		},
		Steps: []*Step{
			{
				ID:      "fetch-cart",
				Name:    "Fetch abandoned cart",
				Service: "cart",
				Action:  "getAbandonedCart",
				Input: InputSpec{
					FromContext: "cartId",
				},
				OnSuccess: "compute-incentive",
			},
			{
				ID:      "compute-incentive",
				Name:    "Compute incentive",
				Service: "pricing",
				Action:  "computeIncentive",
				Conditions: []Condition{
					{Field: "step.fetch-cart.isAbandoned", Op: OpEquals, Value: true},
				},
				Input: InputSpec{
					FromStep: "fetch-cart",
				},
				Retry: &RetrySpec{
					MaxAttempts:  3,
					InitialDelay: Duration(100 * time.Millisecond),
					Multiplier:   2.0,
				},
				OnSuccess: "send-reminder",
				OnFailure: "record-failure",
			},
			{
				ID:      "send-reminder",
				Name:    "Send reminder",
				Service: "notifications",
				Action:  "sendReminder",
				Input: InputSpec{
					FromStep: "compute-incentive",
				},
				Retry: &RetrySpec{
					MaxAttempts:     3,
					InitialDelay:    Duration(250 * time.Millisecond),
					Multiplier:      2.0,
					RetryableErrors: []string{"THROTTLED"},
				},
				OnFailure: "record-failure",
			},
			{
				ID:      "record-failure",
				Name:    "Record recovery failure",
				Service: "analytics",
				Action:  "recordEvent",
				Input: InputSpec{
					Static: map[string]any{"event": "cart-recovery-failed"},
				},
			},
		},
	}
}

// personalizedFeedTemplate fans out recommendation and trending fetches in
// parallel and merges the pair downstream.
func personalizedFeedTemplate() *Workflow {
	return &Workflow{
		ID:          TemplatePersonalizedFeed,
		Name:        "Personalized Feed",
		Description: "Fetch recommendations and trending items concurrently, then merge them into one feed.",
		Version:     "1.0.0",
		Timeout:     Duration(5 * time.Second),
		Metadata:    map[string]string{"category": "engagement"},
		Steps: []*Step{
			{
				ID:      "fetch-recommendations",
				Name:    "Fetch recommendations",
				Service: "personalization",
				Action:  "getRecommendations",
				Input: InputSpec{
					Static: map[string]any{"limit": 20},
				},
				Parallel:  []string{"fetch-trending"},
				Timeout:   Duration(2 * time.Second),
				OnSuccess: "merge-feed",
			},
			{
				ID:      "fetch-trending",
				Name:    "Fetch trending items",
				Service: "catalog",
				Action:  "getTrending",
				Input: InputSpec{
					Static: map[string]any{"window": "24h", "limit": 20},
				},
				Timeout: Duration(2 * time.Second),
			},
			{
				ID:      "merge-feed",
				Name:    "Merge feed sections",
				Service: "feed",
				Action:  "mergeSections",
				Input: InputSpec{
					FromStep: "fetch-recommendations",
				},
			},
		},
	}
}

// fraudCheckTemplate scores a transaction with retries, flags it when the
// score crosses the review threshold, and records the assessment even when
// the analytics sink misbehaves (skip error policy).
func fraudCheckTemplate() *Workflow {
	return &Workflow{
		ID:          TemplateFraudCheck,
		Name:        "Fraud Check",
		Description: "Score a transaction, flag high-risk ones for review, and record the assessment.",
		Version:     "1.0.0",
		Timeout:     Duration(10 * time.Second),
		Metadata:    map[string]string{"category": "risk"},
		ErrorPolicy: &ErrorPolicy{Action: ErrorActionSkip},
		Steps: []*Step{
			{
				ID:      "score-transaction",
				Name:    "Score transaction",
				Service: "fraud",
				Action:  "scoreTransaction",
				Input: InputSpec{
					FromContext: "transaction",
				},
				Retry: &RetrySpec{
					MaxAttempts:  3,
					InitialDelay: Duration(50 * time.Millisecond),
					Multiplier:   2.0,
				},
				Timeout:   Duration(3 * time.Second),
				OnSuccess: "flag-high-risk",
				OnFailure: "queue-manual-review",
			},
			{
				ID:      "flag-high-risk",
				Name:    "Flag high-risk transaction",
				Service: "fraud",
				Action:  "flagTransaction",
				Conditions: []Condition{
					{Field: "step.score-transaction.riskScore", Op: OpGreaterThan, Value: 0.75},
				},
				Input: InputSpec{
					FromStep: "score-transaction",
				},
				OnSuccess: "record-assessment",
			},
			{
				ID:      "queue-manual-review",
				Name:    "Queue manual review",
				Service: "fraud",
				Action:  "queueManualReview",
				Input: InputSpec{
					Static:   map[string]any{"queue": "fraud-review"},
					FromStep: "score-transaction",
				},
				OnSuccess: "record-assessment",
			},
			{
				ID:      "record-assessment",
				Name:    "Record assessment",
				Service: "analytics",
				Action:  "recordEvent",
				Input: InputSpec{
					Static:   map[string]any{"event": "fraud-check-completed"},
					FromStep: "score-transaction",
				},
			},
		},
	}
}

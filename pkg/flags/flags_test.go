package flags

import "testing"

func TestStatic(t *testing.T) {
	source := map[string]bool{"new-checkout": true, "beta-search": false}
	s := NewStatic(source)

	if !s.Enabled("new-checkout", nil) {
		t.Error("new-checkout should be enabled")
	}
	if s.Enabled("beta-search", nil) {
		t.Error("beta-search should be disabled")
	}
	if s.Enabled("never-registered", nil) {
		t.Error("unknown flags should be disabled")
	}

	// The constructor copies the table.
	source["never-registered"] = true
	if s.Enabled("never-registered", nil) {
		t.Error("mutating the source map should not affect the evaluator")
	}

	s.Set("beta-search", true)
	if !s.Enabled("beta-search", nil) {
		t.Error("Set(true) should enable the flag")
	}

	s.Delete("new-checkout")
	if s.Enabled("new-checkout", nil) {
		t.Error("deleted flags should be disabled")
	}
}

func TestEnv(t *testing.T) {
	cases := []struct {
		name string
		env  string
		val  string
		key  string
		want bool
	}{
		{"true", "MAESTRO_FLAG_NEW_CHECKOUT", "true", "new-checkout", true},
		{"one", "MAESTRO_FLAG_NEW_CHECKOUT", "1", "new-checkout", true},
		{"mixed case", "MAESTRO_FLAG_NEW_CHECKOUT", "True", "new-checkout", true},
		{"zero", "MAESTRO_FLAG_NEW_CHECKOUT", "0", "new-checkout", false},
		{"garbage", "MAESTRO_FLAG_NEW_CHECKOUT", "banana", "new-checkout", false},
		{"dots and spaces normalize", "MAESTRO_FLAG_BETA_SEARCH_V2", "t", "beta.search v2", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.env, tc.val)
			if got := (Env{}).Enabled(tc.key, nil); got != tc.want {
				t.Errorf("Enabled(%q) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}

	t.Run("unset", func(t *testing.T) {
		if (Env{}).Enabled("definitely-not-set-anywhere", nil) {
			t.Error("unset flags should be disabled")
		}
	})
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"new-checkout":   "NEW_CHECKOUT",
		"Beta.Search":    "BETA_SEARCH",
		"v2":             "V2",
		"a b":            "A_B",
		"already_UPPER9": "ALREADY_UPPER9",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

package rules

import (
	"testing"
)

func TestRules_BuiltinOrder(t *testing.T) {
	r := NewRegistry()
	got := r.Rules()

	if len(got) == 0 {
		t.Fatal("expected built-in rules, got none")
	}
	if got[0].ID != "users.delete" {
		t.Errorf("expected users.delete first, got %s", got[0].ID)
	}

	// Declaration order must be stable: the gate is first-match-wins.
	again := r.Rules()
	for i := range got {
		if got[i].ID != again[i].ID {
			t.Fatalf("rule order changed between calls at index %d: %s vs %s", i, got[i].ID, again[i].ID)
		}
	}
}

func TestRules_UniqueIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for _, rule := range r.Rules() {
		if seen[rule.ID] {
			t.Errorf("duplicate rule ID: %s", rule.ID)
		}
		seen[rule.ID] = true
	}
}

func TestRules_ContributorAppends(t *testing.T) {
	custom := Rule{
		ID:    "shop.refund",
		Label: "Issue refund",
		AJAX:  &AJAXMatcher{Actions: []string{"issue-refund"}},
	}
	r := NewRegistry(func(rules []Rule) []Rule {
		return append(rules, custom)
	})

	got := r.Rules()
	last := got[len(got)-1]
	if last.ID != "shop.refund" {
		t.Errorf("contributed rule should come after built-ins, got %s last", last.ID)
	}
}

func TestRules_ContributorRemoves(t *testing.T) {
	r := NewRegistry(func(rules []Rule) []Rule {
		kept := rules[:0]
		for _, rule := range rules {
			if rule.ID != "media.purge" {
				kept = append(kept, rule)
			}
		}
		return kept
	})

	for _, rule := range r.Rules() {
		if rule.ID == "media.purge" {
			t.Fatal("removed rule still present")
		}
	}
}

func TestRules_ContributorsRunInOrder(t *testing.T) {
	var calls []string
	r := NewRegistry(
		func(rules []Rule) []Rule {
			calls = append(calls, "first")
			return rules
		},
		func(rules []Rule) []Rule {
			calls = append(calls, "second")
			return rules
		},
	)

	r.Rules()
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("contributors ran out of order: %v", calls)
	}
}

func TestRules_Memoized(t *testing.T) {
	builds := 0
	r := NewRegistry(func(rules []Rule) []Rule {
		builds++
		return rules
	})

	r.Rules()
	r.Rules()
	r.Rules()
	if builds != 1 {
		t.Errorf("expected 1 cache build, got %d", builds)
	}
}

func TestResetCache_Rebuilds(t *testing.T) {
	builds := 0
	r := NewRegistry(func(rules []Rule) []Rule {
		builds++
		return rules
	})

	r.Rules()
	r.ResetCache()
	r.Rules()
	if builds != 2 {
		t.Errorf("expected rebuild after ResetCache, got %d builds", builds)
	}
}

func TestRules_SkipsEntriesWithoutID(t *testing.T) {
	r := NewRegistry(func(rules []Rule) []Rule {
		return append(rules, Rule{Label: "nameless"})
	})

	for _, rule := range r.Rules() {
		if rule.ID == "" {
			t.Fatal("rule without ID should be skipped")
		}
	}
}

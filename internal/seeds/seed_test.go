package seeds

import "testing"

func TestStatuses(t *testing.T) {
	names, err := Statuses()
	if err != nil {
		t.Fatalf("Statuses: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("expected at least one status")
	}

	seen := map[string]bool{}
	for _, n := range names {
		if n == "" {
			t.Error("empty status label")
		}
		if seen[n] {
			t.Errorf("duplicate status label %q", n)
		}
		seen[n] = true
	}
	if !seen["Open"] {
		t.Error(`the default status "Open" must be seeded`)
	}
}

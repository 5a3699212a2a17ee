package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSet(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for _, v := range []string{"{today}", "{grounding}"} {
		if !strings.Contains(set.Receptionist, v) {
			t.Fatalf("receptionist prompt missing %s", v)
		}
	}
	if set.Summary == "" {
		t.Fatal("summary prompt is empty")
	}
}

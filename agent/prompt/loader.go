package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/receptionist.txt
	receptionistRaw string

	//go:embed template/summary.txt
	summaryRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	// Receptionist is an FString template with {today} and {grounding}.
	Receptionist string
	Summary      string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Receptionist: strings.TrimSpace(receptionistRaw),
		Summary:      strings.TrimSpace(summaryRaw),
	}
}

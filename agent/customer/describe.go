// Package customer turns what the backend knows about a caller into grounding
// text for the model.
package customer

import (
	"fmt"
	"strings"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// Describe renders a profile as plain sentences. Output depends only on the
// profile, so it is safe to embed in cached prompts.
func Describe(p contractx.CustomerProfile) string {
	name := strings.TrimSpace(p.Name)
	email := strings.TrimSpace(p.Email)
	address := strings.TrimSpace(p.Address)

	if name == "" && email == "" && address == "" {
		if p.NumberOfCalls == 1 {
			return fmt.Sprintf("This is the first call from the customer with phone number %s. No reservation history is available for this customer.", p.Phone)
		}
		return fmt.Sprintf("The customer with phone number %s has called before, %s in total, but nothing else is known about them. No reservation history is available for this customer.", p.Phone, times(p.NumberOfCalls))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The customer's phone number is %s.", p.Phone)

	var missing []string
	for _, f := range []struct {
		label string
		value string
	}{
		{"name", name},
		{"email", email},
		{"address", address},
	} {
		if f.value == "" {
			missing = append(missing, f.label)
			continue
		}
		fmt.Fprintf(&b, " Their %s is %s.", f.label, f.value)
	}

	if len(missing) > 0 {
		fmt.Fprintf(&b, " We do not know their %s yet.", joinAnd(missing))
	}
	fmt.Fprintf(&b, " They have called the restaurant %s.", times(p.NumberOfCalls))
	return b.String()
}

func times(n int) string {
	if n == 1 {
		return "1 time"
	}
	return fmt.Sprintf("%d times", n)
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

package customer

import (
	"fmt"
	"strings"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

var callingCodes = map[string]string{
	"BE": "32",
	"CH": "41",
	"DE": "49",
	"ES": "34",
	"FR": "33",
	"GB": "44",
	"IE": "353",
	"IT": "39",
	"LU": "352",
	"NL": "31",
	"PT": "351",
	"US": "1",
}

// CallingCode returns the international prefix for an ISO region code.
func CallingCode(region string) (string, bool) {
	code, ok := callingCodes[strings.ToUpper(strings.TrimSpace(region))]
	return code, ok
}

// NormalizePhone converts raw caller input to "+<digits>". A leading "00" is
// read as the international prefix and a single leading "0" as a national
// number in callingCode.
func NormalizePhone(raw, callingCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: phone number is required", contractx.ErrValidation)
	}

	international := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			return "", fmt.Errorf("%w: phone number %q contains invalid characters", contractx.ErrValidation, raw)
		}
	}

	d := digits.String()
	switch {
	case d == "":
		return "", fmt.Errorf("%w: phone number %q has no digits", contractx.ErrValidation, raw)
	case international:
	case strings.HasPrefix(d, "00"):
		d = d[2:]
	case strings.HasPrefix(d, "0"):
		if callingCode == "" {
			return "", fmt.Errorf("%w: national number %q needs a region", contractx.ErrValidation, raw)
		}
		d = callingCode + d[1:]
	}

	if len(d) < 6 || len(d) > 15 {
		return "", fmt.Errorf("%w: phone number %q has an invalid length", contractx.ErrValidation, raw)
	}
	return "+" + d, nil
}

package pubsub

import (
	"fmt"
	"strconv"
	"strings"
)

// scheduleToCron translates a rule's schedule expression into a
// robfig/cron v3 spec. "rate(<n> <unit>)" becomes a fixed-interval
// schedule; "cron(<expr>)" is unwrapped and any other string is passed
// through unchanged, so the expression must suit robfig/cron's standard
// five-field parser.
func scheduleToCron(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "rate(") && strings.HasSuffix(expr, ")"):
		return rateToCron(strings.TrimSuffix(strings.TrimPrefix(expr, "rate("), ")"))
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		return strings.TrimSuffix(strings.TrimPrefix(expr, "cron("), ")"), nil
	default:
		// allow a bare cron expression too
		return expr, nil
	}
}

func rateToCron(body string) (string, error) {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", fmt.Errorf("rate expression must be \"<n> <unit>\"")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return "", fmt.Errorf("rate value must be a positive integer")
	}
	unit := strings.TrimSuffix(strings.ToLower(fields[1]), "s")

	switch unit {
	case "minute":
		if n == 1 {
			return "@every 1m", nil
		}
		return fmt.Sprintf("@every %dm", n), nil
	case "hour":
		return fmt.Sprintf("@every %dh", n), nil
	case "day":
		return fmt.Sprintf("@every %dh", n*24), nil
	default:
		return "", fmt.Errorf("unsupported rate unit: %s", fields[1])
	}
}

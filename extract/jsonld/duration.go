package jsonld

import (
	"regexp"
	"strconv"
)

// Schema.org durations are ISO 8601 with day precision at most. Weeks,
// months, and years never appear on recipe markup in practice and are
// rejected rather than guessed at.
var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDurationMinutes converts an ISO 8601 duration such as "PT1H30M" to
// whole minutes. Seconds round the total up by one minute when they reach
// 30, or whenever the total would otherwise be zero, so short pauses like
// "PT45S" survive as one minute. A zero duration with no seconds component
// reports absent.
func parseDurationMinutes(s string) (int, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, false
	}

	total := atoiOrZero(m[1])*24*60 + atoiOrZero(m[2])*60 + atoiOrZero(m[3])

	if m[4] != "" {
		secs := atoiOrZero(m[4])
		if secs >= 30 || (total == 0 && secs > 0) {
			total++
		}
	}
	if total == 0 {
		return 0, false
	}
	return total, true
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

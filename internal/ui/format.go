package ui

import "fmt"

// formatCountdown renders remaining seconds as H:MM:SS, or MM:SS under an
// hour.
func formatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// optionLabel maps an option index to its display key: 1-9, then 0.
// Questions with more than ten options fall back to plain numbering.
func optionLabel(i int) string {
	if i < 9 {
		return fmt.Sprintf("%d", i+1)
	}
	if i == 9 {
		return "0"
	}
	return fmt.Sprintf("%d", i+1)
}

// keyToOptionIndex resolves a pressed digit to an option index, or -1.
func keyToOptionIndex(key string, optionCount int) int {
	if len(key) != 1 || key[0] < '0' || key[0] > '9' {
		return -1
	}
	idx := int(key[0] - '1')
	if key[0] == '0' {
		idx = 9
	}
	if idx < 0 || idx >= optionCount {
		return -1
	}
	return idx
}

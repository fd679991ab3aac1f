package gsettings

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseValue converts a printed GVariant to an integer: booleans become
// 0/1, integers may carry a type prefix ("uint32 3700", "@i 5").
func ParseValue(s string) (int64, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("gsettings: empty value")
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("gsettings: unsupported value %q", s)
	}
	if len(fields) > 2 {
		return 0, fmt.Errorf("gsettings: unsupported value %q", s)
	}
	return n, nil
}

// parseMonitorLine splits one "key: value" line of gsettings monitor.
func parseMonitorLine(line string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(line, ": ")
	if !ok || name == "" {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}

package wire

import (
	"fmt"
	"math"
)

// Transport status words, matching the binder status_t values a HAL returns.
const (
	StatusOK                int32 = 0
	StatusNoMemory          int32 = -12
	StatusBadValue          int32 = -22
	StatusDeadObject        int32 = -32
	StatusNotEnoughData     int32 = -61
	StatusTimedOut          int32 = -110
	StatusUnknownError      int32 = math.MinInt32
	StatusBadType           int32 = math.MinInt32 + 1
	StatusFailedTransaction int32 = math.MinInt32 + 2
)

// StatusText returns a short name for a transport status word.
func StatusText(status int32) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusNoMemory:
		return "no memory"
	case StatusBadValue:
		return "bad value"
	case StatusDeadObject:
		return "dead object"
	case StatusNotEnoughData:
		return "not enough data"
	case StatusTimedOut:
		return "timed out"
	case StatusUnknownError:
		return "unknown error"
	case StatusBadType:
		return "bad type"
	case StatusFailedTransaction:
		return "failed transaction"
	default:
		return fmt.Sprintf("status %d", status)
	}
}

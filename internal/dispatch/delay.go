package dispatch

import "time"

// EnterDelay computes the fixed paste/enter race mitigation delay for a
// piece of content of the given length: 50ms plus 0.02ms per byte, capped
// at 500ms.
func EnterDelay(contentLen int) time.Duration {
	ms := 50.0 + 0.02*float64(contentLen)
	if ms > 500 {
		ms = 500
	}
	return time.Duration(ms * float64(time.Millisecond))
}

//go:build !windows

package debug

import (
	"fmt"
	"os"
)

// processRSS reads the resident set from /proc/self/statm. Platforms
// without procfs report an error.
func processRSS() (uint64, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, err
	}
	var size, resident uint64
	if _, err := fmt.Sscanf(string(data), "%d %d", &size, &resident); err != nil {
		return 0, err
	}
	return resident * uint64(os.Getpagesize()), nil
}

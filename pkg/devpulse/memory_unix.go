//go:build unix

package devpulse

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// peakMemoryBytes returns the peak resident set size of the process.
func peakMemoryBytes() uint64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil || ru.Maxrss <= 0 {
		return runtimePeakMemory()
	}
	// Maxrss is reported in bytes on darwin and in kilobytes elsewhere.
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return uint64(ru.Maxrss)
	}
	return uint64(ru.Maxrss) * 1024
}

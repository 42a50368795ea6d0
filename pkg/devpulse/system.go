// system.go provides runtime memory figures used by the context snapshot.

package devpulse

import "runtime"

// runtimePeakMemory approximates peak usage with the memory obtained from the OS.
func runtimePeakMemory() uint64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return memStats.Sys
}

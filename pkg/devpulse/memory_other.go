//go:build !unix

package devpulse

func peakMemoryBytes() uint64 {
	return runtimePeakMemory()
}

//go:build !linux

package hal

// pinThread is a no-op where thread affinity is not available.
func pinThread(cpu int) error {
	return nil
}

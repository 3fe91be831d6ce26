//go:build unix

package debug

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// processRSS returns the peak resident set size in bytes. Linux reports ru_maxrss in
// KiB, Darwin in bytes.
func processRSS() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, errors.Wrap(err, "getrusage")
	}
	rss := uint64(ru.Maxrss)
	if runtime.GOOS != "darwin" {
		rss *= 1024
	}
	return rss, nil
}

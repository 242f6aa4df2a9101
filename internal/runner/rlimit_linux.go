//go:build linux

package runner

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// raiseFileLimit lifts the soft NOFILE limit to the hard limit. Each
// simulated user can hold several sockets; the default soft limit of
// 1024 starves large runs.
func raiseFileLimit(logger *zap.Logger) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		logger.Warn("reading NOFILE limit failed", zap.Error(err))
		return
	}
	if lim.Cur >= lim.Max {
		return
	}
	old := lim.Cur
	lim.Cur = lim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		logger.Warn("raising NOFILE limit failed", zap.Error(err))
		return
	}
	logger.Debug("raised NOFILE limit",
		zap.Uint64("from", old), zap.Uint64("to", lim.Cur))
}

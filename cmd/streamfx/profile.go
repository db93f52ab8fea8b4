package main

import (
	"fmt"
	"strings"

	"github.com/pkg/profile"
)

// startProfile starts the named runtime profile and returns its stop func.
// psi owns signal handling, so the profile's own shutdown hook is disabled.
func startProfile(kind, dir string) (func(), error) {
	opts := []func(*profile.Profile){profile.NoShutdownHook}
	if dir != "" {
		opts = append(opts, profile.ProfilePath(dir))
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return func() {}, nil
	case "cpu":
		opts = append(opts, profile.CPUProfile)
	case "mem":
		opts = append(opts, profile.MemProfile, profile.MemProfileAllocs)
	case "block":
		opts = append(opts, profile.BlockProfile)
	case "mutex":
		opts = append(opts, profile.MutexProfile)
	case "goroutine":
		opts = append(opts, profile.GoroutineProfile)
	default:
		return nil, fmt.Errorf("unknown profile %q (cpu, mem, block, mutex, goroutine)", kind)
	}
	p := profile.Start(opts...)
	return p.Stop, nil
}

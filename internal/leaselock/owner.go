package leaselock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Owner identifies the process holding the lease.
type Owner struct {
	Host string
	PID  int
}

// String renders the owner in the stored "host:pid" form.
func (o Owner) String() string {
	return fmt.Sprintf("%s:%d", o.Host, o.PID)
}

// ParseOwner parses the stored "host:pid" form. The split is on the last
// colon so hostnames containing colons still round-trip.
func ParseOwner(s string) (Owner, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 1 || idx == len(s)-1 {
		return Owner{}, fmt.Errorf("malformed lease owner %q", s)
	}
	pid, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Owner{}, fmt.Errorf("malformed lease owner pid in %q: %w", s, err)
	}
	return Owner{Host: s[:idx], PID: pid}, nil
}

// CurrentOwner builds the Owner for this process.
func CurrentOwner() (Owner, error) {
	host, err := os.Hostname()
	if err != nil {
		return Owner{}, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	return Owner{Host: host, PID: os.Getpid()}, nil
}

// Liveness reports whether a PID belongs to a running process on this
// host. Injected so tests can fake dead processes.
type Liveness func(pid int) bool

// PIDAlive checks the local process table. When the check itself fails
// the process is assumed alive, so a lease is never stolen on a guess.
func PIDAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return true
	}
	return alive
}

package port

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultSpan is how many ports above the wanted one Resolve tries.
const DefaultSpan = 64

// Port bounds.
const (
	Min = 1
	Max = 65535
)

// Available reports whether p can be bound on every interface.
func Available(p int) bool {
	if p < Min || p > Max {
		return false
	}
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(p)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocate finds the first available port in [from, to].
func Allocate(from, to int) (int, error) {
	if from < Min {
		from = Min
	}
	if to > Max {
		to = Max
	}
	for p := from; p <= to; p++ {
		if Available(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", from, to)
}

// Resolve returns want when it is free, otherwise the first free port
// among the span ports above it.
func Resolve(want, span int) (int, error) {
	return Allocate(want, want+span)
}

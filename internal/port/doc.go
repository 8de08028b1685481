// Package port checks host TCP ports for the guest's SSH forward.
//
// QEMU's user-mode networking binds the forwarded port on every host
// interface and refuses to start when it is taken, typically by another
// build or a guest started with the run command. Resolve picks a free
// port near the configured one instead:
//
//	p, err := port.Resolve(cfg.Machine.SSHPort, port.DefaultSpan)
//
// # Allocation Strategy
//
// Ports are allocated first-fit: the lowest available value at or above
// the wanted port is chosen.
package port

// Package netsock provides the OS-facing adapters of the connection manager.
//
//   - sockets_unix.go: raw TCP client descriptors via golang.org/x/sys/unix
//   - sockets_other.go: stub for platforms without BSD sockets in x/sys/unix
//   - resolver.go: forward and reverse name resolution
//
// Descriptors are blocking. Connect is a single connect(2) call and
// reports EINTR to the caller, which owns the retry policy.
package netsock

// Package service provides domain services for tcpctl.
//
// ConnectionManager owns the lifecycle of TCP client sessions. It
// resolves destinations, creates sockets, connects them over the
// candidate addresses in order, and keeps the session table in step
// with the descriptors it hands out.
//
// The manager defines the interfaces it needs (SessionTable, Resolver,
// Sockets) so that storage and OS access can be swapped in tests:
//
//   - storage/memory.Table implements SessionTable
//   - infra/netsock.Resolver implements Resolver
//   - infra/netsock.Sockets implements Sockets
//
// Cancellation is carried by the context passed to each operation. A
// connect interrupted by a signal is retried until the context is done.
package service

// Package domain defines the core domain models for tcpctl.
//
// Domain models are pure value objects without IO dependencies:
//
//   - Session: one TCP client socket, its peer and usage flags
//   - Family, SessionFlags, SessionState: session metadata
//   - Errors: coded domain errors wrapping OS errnos
package domain

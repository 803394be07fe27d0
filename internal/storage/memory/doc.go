// Package memory provides in-memory storage for tcpctl.
//
// Table is the process session registry: an ordered list of
// session records keyed by OS socket handle.
//
// Thread Safety:
//
// All operations take a single table mutex, so create, find, remove
// and iterate serialize as one unit. Iteration works on snapshots.
package memory

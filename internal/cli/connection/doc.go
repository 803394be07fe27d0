// Package connection holds the session registry behind tcpctl commands.
//
// A Manager bundles the session table, the network adapters, the
// metrics registry and the retry limiter into one value built from the
// CLI configuration. A single Manager lives for the whole process so
// that handles opened on one REPL line stay usable on the next.
package connection

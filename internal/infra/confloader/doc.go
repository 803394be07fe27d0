// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (TCPCTL_ prefix)
//  3. YAML configuration file
//  4. Default values (WithDefaults)
//
// Watcher reports changes to a configuration file through fsnotify so
// long-running sessions such as the REPL can pick them up.
package confloader

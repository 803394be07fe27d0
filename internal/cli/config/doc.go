// Package config provides CLI configuration for tcpctl.
//
//   - spec.go: CLIConfig struct (~/.tcpctl/cli.yaml) and validation
//   - loader.go: loading through confloader and saving as YAML
//
// Configuration includes the default port and address family, output
// format, log level, resolver timeout, connect retry pacing and the
// REPL history file.
package config

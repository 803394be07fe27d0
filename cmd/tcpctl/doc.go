// Package main provides the entry point for tcpctl.
//
// tcpctl opens, lists and closes raw TCP client connections and keeps
// them in a process-wide session registry. Each connection is named by
// its socket handle.
//
// Usage:
//
//	tcpctl open mail.example.com 25
//	tcpctl -o json list
//	tcpctl                 # interactive shell
//
// In the shell, handles stay open between lines and can be driven with
// send and recv. Leaving the shell closes every connection.
package main

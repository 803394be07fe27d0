// Package buildinfo exposes the version of the tcpctl binary.
package buildinfo

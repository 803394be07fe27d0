// Package output provides output formatting for tcpctl.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned text tables, with wide-only columns
//   - json.go: JSON output formatting
//   - yaml.go: YAML output formatting
//   - spinner.go: progress animation for slow connects
//
// Table output is for people; json and yaml are for scripts.
package output

// Package output serializes change-set reports into text, JSON, or YAML
// and provides the writers that deliver them to stdout or a file.
package output

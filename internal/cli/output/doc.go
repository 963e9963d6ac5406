// Package output renders memkv-check results as a table, JSON or YAML,
// and draws load progress for large snapshots.
package output

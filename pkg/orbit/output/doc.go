// Package output renders orbit CLI results as tables, JSON or YAML, and holds
// the terminal styles shared by the commands.
package output

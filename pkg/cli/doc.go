// Package cli defines the orbit-server command-line flags. Every flag falls
// back to an environment variable and overrides the matching value from the
// configuration file.
package cli

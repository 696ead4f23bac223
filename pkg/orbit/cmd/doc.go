// Package cmd implements the cobra command tree for the orbit CLI: device
// login, the interactive chat REPL, conversation management and shell
// completion.
package cmd

// Package api implements the orbit-server HTTP surface on gin: the server
// lifecycle, controller registration, the identity endpoints used by the CLI
// and the device verification redirect.
package api

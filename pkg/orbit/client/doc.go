// Package client is the orbit CLI's REST client for orbit-server.
package client

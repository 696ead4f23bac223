// Package completion adapts AI completion backends to orbit conversations.
package completion

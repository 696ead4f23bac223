// Package conversation stores per-user conversation threads and their ordered
// messages. Message content is either text or a structured JSON document.
package conversation

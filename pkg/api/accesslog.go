package api

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "REDACTED"

var (
	// /api/me/:access_token carries a live session token in the path.
	tokenPathPattern = regexp.MustCompile(`(/api/me/)[^/?\s"]+`)
	// recovery dumps the raw request, headers included
	credentialHeaderPattern = regexp.MustCompile(`(?im)^((?:authorization|cookie):)[^\r\n]*`)
)

func redact(s string) string {
	s = tokenPathPattern.ReplaceAllString(s, "${1}"+redacted)
	return credentialHeaderPattern.ReplaceAllString(s, "${1} "+redacted)
}

// redactingLogger is handed to the ginzap middlewares so access and panic
// logs never carry session tokens.
type redactingLogger struct {
	log *zap.Logger
}

func (r redactingLogger) Info(msg string, fields ...zap.Field) {
	r.log.Info(redact(msg), redactFields(fields)...)
}

func (r redactingLogger) Error(msg string, fields ...zap.Field) {
	r.log.Error(redact(msg), redactFields(fields)...)
}

func redactFields(fields []zap.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	copy(out, fields)
	for i := range out {
		if out[i].Type == zapcore.StringType {
			out[i].String = redact(out[i].String)
		}
	}
	return out
}

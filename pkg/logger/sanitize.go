package logger

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type redaction struct {
	label   string
	pattern *regexp.Regexp
}

// Applied in order; the URL rule runs last so earlier labels survive inside it.
var redactions = []redaction{
	{"[EMAIL]", regexp.MustCompile(`(?i)[a-z0-9._-]+@[a-z0-9._-]+\.[a-z0-9._-]+`)},
	{"[IP]", regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)},
	{"[TOKEN]", regexp.MustCompile(`Bearer [a-zA-Z0-9\-._~+/]+=*`)},
	{"[API_KEY]", regexp.MustCompile(`key-[a-zA-Z0-9]{32}`)},
	{"[URL_WITH_PARAMS]", regexp.MustCompile(`https?://[^?\s]*\?[^'\s]*`)},
}

// Field keys whose values are identifiers or display text and are never redacted.
var safeKeys = map[string]bool{
	"id":          true,
	"name":        true,
	"title":       true,
	"description": true,
}

// SanitizeString replaces emails, IPv4 addresses, bearer tokens, API keys and
// URLs carrying query strings with placeholder labels.
func SanitizeString(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.label)
	}
	return s
}

type sanitizingCore struct {
	zapcore.Core
}

// NewSanitizingCore wraps core so that messages, string fields and error
// fields are passed through SanitizeString before encoding.
func NewSanitizingCore(core zapcore.Core) zapcore.Core {
	return &sanitizingCore{Core: core}
}

func (c *sanitizingCore) With(fields []zapcore.Field) zapcore.Core {
	return &sanitizingCore{Core: c.Core.With(sanitizeFields(fields))}
}

func (c *sanitizingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sanitizingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = SanitizeString(ent.Message)
	return c.Core.Write(ent, sanitizeFields(fields))
}

func sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case safeKeys[f.Key]:
			out[i] = f
		case f.Type == zapcore.StringType:
			out[i] = zap.String(f.Key, SanitizeString(f.String))
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				out[i] = zap.String(f.Key, SanitizeString(err.Error()))
			} else {
				out[i] = f
			}
		default:
			out[i] = f
		}
	}
	return out
}

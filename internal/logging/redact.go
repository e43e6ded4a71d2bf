package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// redactHook is a logrus.Hook that masks email addresses in field values
// before they reach the formatter, adapted from the teacher's
// redactPIIValue/RedactEmail (internal/pkg/logger/redact.go) to logrus's
// Hook interface instead of an inline call in the write path.
type redactHook struct {
	enabled bool
}

func (h *redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *redactHook) Fire(entry *logrus.Entry) error {
	if !h.enabled {
		return nil
	}
	for key, val := range entry.Data {
		s, ok := val.(string)
		if !ok {
			continue
		}
		entry.Data[key] = redactPIIValue(key, s)
	}
	return nil
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "email") || strings.Contains(lower, "sender") || strings.Contains(lower, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" -> "jo***@example.com"
// Short local parts (<=2 chars) are fully masked: "ab@example.com" -> "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return fmt.Sprintf("%s***@%s", name[:2], parts[1])
	}
	return "***@" + parts[1]
}

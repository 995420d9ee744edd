package files

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SanitizeName reduces a user-supplied filename to a safe flat name: any
// path component is stripped and everything outside [A-Za-z0-9._-] is
// replaced with an underscore. A name with nothing left becomes "file".
func SanitizeName(original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "file"
	}
	return name
}

// NewStoredName builds a content store key from the owner, a fine-grained
// timestamp and the sanitized original name. The uuid component makes the
// key unique even for identical uploads in the same microsecond; stored
// names are never reused.
func NewStoredName(username, original string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%06d_%s_%s",
		SanitizeName(username),
		now.Format("20060102_150405"),
		now.Nanosecond()/1000,
		uuid.NewString(),
		SanitizeName(original),
	)
}

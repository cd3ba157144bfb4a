// Package sanitize prepares client-supplied filenames for use in HTTP
// response headers.
package sanitize

import (
	"strings"
	"unicode"
)

// Filename removes characters that could break out of a Content-Disposition
// header or smuggle additional headers.
func Filename(filename string) string {
	for _, bad := range []string{"\x00", "\n", "\r", `"`, `'`, `\`, "/"} {
		filename = strings.ReplaceAll(filename, bad, "")
	}

	result := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")

	if result == "" {
		return "download"
	}

	// Limit length to prevent overly long headers
	if len(result) > 200 {
		result = result[:200]
	}

	return result
}

// rfc5987Unreserved reports whether b may appear unescaped in an RFC 5987
// ext-value (attr-char).
func rfc5987Unreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '&', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// PercentEncodeFilename percent-encodes a sanitized filename for the
// `filename*=UTF-8''...` form of Content-Disposition (RFC 5987).
func PercentEncodeFilename(filename string) string {
	const hexDigits = "0123456789ABCDEF"

	safe := Filename(filename)
	var b strings.Builder
	b.Grow(len(safe))
	for i := 0; i < len(safe); i++ {
		c := safe[i]
		if rfc5987Unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

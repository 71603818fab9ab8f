package chat

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// The model streams a single JSON object {"text": ..., "emotion": ...} and
// mid-stream the accumulated payload is almost always truncated. These
// helpers extract the best-effort current field values from that payload.
// Both are stateless and idempotent: the same input yields the same result.

// repairedObject returns a parseable rendition of raw, repairing truncated
// JSON when a strict parse fails.
func repairedObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if json.Valid([]byte(raw)) {
		return raw, true
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil || !gjson.Valid(fixed) {
		return "", false
	}
	return fixed, true
}

// ExtractText returns the current value of the "text" field. If no parse or
// pattern extraction succeeds yet, it returns "" ("no value yet").
func ExtractText(raw string) string {
	if obj, ok := repairedObject(raw); ok {
		if v := gjson.Get(obj, "text"); v.Type == gjson.String {
			return v.String()
		}
	}
	return literalTextPrefix(raw)
}

// ExtractEmotion returns the emotion tag carried by the payload. It only
// accepts a parsed object whose "emotion" is a valid vocabulary member;
// it never guesses from a partially accumulated field value.
func ExtractEmotion(raw string) (Emotion, bool) {
	obj, ok := repairedObject(raw)
	if !ok {
		return "", false
	}
	v := gjson.Get(obj, "emotion")
	if v.Type != gjson.String || !ValidEmotion(v.String()) {
		return "", false
	}
	return Emotion(v.String()), true
}

// literalTextPrefix scans raw for the "text" field's string literal and
// decodes the longest prefix available, even when the closing quote has not
// arrived yet.
func literalTextPrefix(raw string) string {
	i := strings.Index(raw, `"text"`)
	if i < 0 {
		return ""
	}
	rest := raw[i+len(`"text"`):]
	rest = strings.TrimLeft(rest, " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return ""
	}
	return decodeStringPrefix(rest[1:])
}

// decodeStringPrefix decodes a JSON string body up to its closing quote or,
// for a truncated literal, up to the last decodable character.
func decodeStringPrefix(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			break
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			// Trailing backslash: the escape is still in flight.
			break
		}
		i++
		switch s[i] {
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(s) {
				return b.String()
			}
			n, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return b.String()
			}
			b.WriteRune(rune(n))
			i += 4
		default:
			// Unknown escape, keep it verbatim.
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

package runner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// Output encodings.
const (
	EncodingUTF8  = "utf-8"
	EncodingEUCKR = "euc-kr"
	EncodingAuto  = "auto"
)

// encodingEnv makes Python-based screeners write UTF-8 regardless of the
// console code page they would otherwise inherit.
var encodingEnv = map[string]string{
	"PYTHONIOENCODING": "utf-8",
	"PYTHONUTF8":       "1",
	"LANG":             "C.UTF-8",
	"LC_ALL":           "C.UTF-8",
}

// Decode converts raw program output to text.
//
// utf-8 replaces invalid sequences with U+FFFD, euc-kr decodes the legacy
// Korean code page, and auto keeps valid UTF-8 as is and otherwise decodes
// EUC-KR. Unknown encodings are treated as utf-8.
func Decode(encoding string, b []byte) string {
	switch encoding {
	case EncodingEUCKR:
		return decodeEUCKR(b)
	case EncodingAuto:
		if utf8.Valid(b) {
			return string(b)
		}
		return decodeEUCKR(b)
	default:
		out, err := unicode.UTF8.NewDecoder().Bytes(b)
		if err != nil {
			return strings.ToValidUTF8(string(b), "\uFFFD")
		}
		return string(out)
	}
}

func decodeEUCKR(b []byte) string {
	out, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// buildEnv layers the environment as base, then encoding defaults, then
// extra. An inherited code page such as PYTHONIOENCODING=cp949 cannot undo
// the UTF-8 defaults; only extra (SCREENER_ENV) can. Encoding defaults are
// skipped for euc-kr output, which expects the program to keep its legacy
// code page.
func buildEnv(encoding string, base []string, extra map[string]string) []string {
	merged := make(map[string]string, len(base)+len(extra)+len(encodingEnv))
	var order []string
	set := func(k, v string) {
		if _, ok := merged[k]; !ok {
			order = append(order, k)
		}
		merged[k] = v
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}
	if encoding != EncodingEUCKR {
		for _, k := range []string{"PYTHONIOENCODING", "PYTHONUTF8", "LANG", "LC_ALL"} {
			set(k, encodingEnv[k])
		}
	}
	for k, v := range extra {
		set(k, v)
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+merged[k])
	}
	return env
}

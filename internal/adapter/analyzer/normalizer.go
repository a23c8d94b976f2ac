package analyzer

import "strings"

// NormalizeKey reduces a URI to the scheme and host independent key used in
// the corpora: "http://dbpedia.org/resource/Foo" and
// "https://dbpedia.org/resource/Foo" both become "resource/Foo".
//
// The split is purely textual. Percent-encoding, fragments, query strings and
// trailing slashes are kept as they appear in the path. Keys that are not
// absolute URIs are returned trimmed but otherwise unchanged, which makes the
// function idempotent.
func NormalizeKey(raw string) string {
	key := strings.TrimSpace(raw)

	// SPARQL style <uri>
	if len(key) > 2 && key[0] == '<' && key[len(key)-1] == '>' {
		if inner := key[1 : len(key)-1]; schemeEnd(inner) > 0 {
			key = inner
		}
	}

	end := schemeEnd(key)
	if end < 0 {
		return key
	}

	rest := key[end+len("://"):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		// host only, nothing left to identify
		return ""
	}
	return rest[slash+1:]
}

// schemeEnd returns the index of "://" when s starts with an RFC 3986 scheme
// followed by "://", and -1 otherwise.
func schemeEnd(s string) int {
	idx := strings.Index(s, "://")
	if idx <= 0 {
		return -1
	}
	for i := 0; i < idx; i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return -1
		}
	}
	return idx
}

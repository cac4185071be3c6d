// Package jsonscan finds JSON objects embedded in free text.
package jsonscan

const maxDepth = 64

// Objects returns the outermost balanced {...} spans of text in
// order. Braces inside JSON strings are ignored. Spans that never close or
// close with the wrong bracket are skipped.
func Objects(text string) []string {
	var spans []string

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		end, ok := scanGroup(text, i, 0)
		if !ok {
			continue
		}

		spans = append(spans, text[i:end])
		i = end - 1
	}

	return spans
}

// scanGroup consumes the bracket group opening at text[start] and returns the
// index just past its closing bracket.
func scanGroup(text string, start, depth int) (int, bool) {
	if depth > maxDepth {
		return 0, false
	}

	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}

	for i := start + 1; i < len(text); {
		switch c := text[i]; c {
		case '"':
			end, ok := scanString(text, i)
			if !ok {
				return 0, false
			}

			i = end
		case '{', '[':
			end, ok := scanGroup(text, i, depth+1)
			if !ok {
				return 0, false
			}

			i = end
		case '}', ']':
			if c != closer {
				return 0, false
			}

			return i + 1, true
		default:
			i++
		}
	}

	return 0, false
}

func scanString(text string, start int) (int, bool) {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i + 1, true
		}
	}

	return 0, false
}

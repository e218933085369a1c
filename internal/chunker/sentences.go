package chunker

import "unicode"

// span is a contiguous byte range of the source text. Spans produced by
// the splitters tile the text without gaps so that chunks built from them
// are exact slices of the original content.
type span struct {
	start  int
	end    int
	tokens int
}

// splitSentences splits text into contiguous sentence spans. Sentences end
// at '.', '!' or '?' followed by whitespace or end of text; a terminator
// preceded by an uppercase letter is treated as an abbreviation ("Dr.").
// Whitespace between sentences belongs to the following span.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	var prev rune

	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			next, ok := runeAt(text, i+len(string(r)))
			atEnd := !ok
			if (atEnd || unicode.IsSpace(next)) && !unicode.IsUpper(prev) {
				end := i + len(string(r))
				spans = append(spans, span{start: start, end: end})
				start = end
			}
		}
		prev = r
	}

	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

func runeAt(s string, i int) (rune, bool) {
	if i >= len(s) {
		return 0, false
	}
	for _, r := range s[i:] {
		return r, true
	}
	return 0, false
}

// Package chunker slices large text into token-bounded, overlapping pages.
//
// Chunking is a pure function of the text and the options: the same input
// always yields the same boundaries, so a cached response can be paged
// through across calls by offset alone.
package chunker

import (
	"unicode"
	"unicode/utf8"
)

// Options bound the chunks. Token counts are approximations computed as
// bytes divided by CharsPerToken.
type Options struct {
	MaxTokens     int
	OverlapTokens int
	CharsPerToken int
}

// DefaultOptions matches the defaults of the server configuration.
func DefaultOptions() Options {
	return Options{MaxTokens: 22000, OverlapTokens: 200, CharsPerToken: 4}
}

func (o Options) normalized() Options {
	if o.CharsPerToken <= 0 {
		o.CharsPerToken = 4
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultOptions().MaxTokens
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	// The overlap must leave room to advance.
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 2
	}
	return o
}

// MaxChars is the chunk size in bytes.
func (o Options) MaxChars() int {
	n := o.normalized()
	return n.MaxTokens * n.CharsPerToken
}

// OverlapChars is the overlap between adjacent chunks in bytes.
func (o Options) OverlapChars() int {
	n := o.normalized()
	return n.OverlapTokens * n.CharsPerToken
}

// Metadata describes a chunk's place in the original text.
type Metadata struct {
	OriginalLength  int  `json:"original_length"`
	IsComplete      bool `json:"is_complete"`
	EstimatedTokens int  `json:"estimated_tokens"`
}

// Chunk is one page. Start and End are byte offsets into the original
// text, End exclusive.
type Chunk struct {
	Index    int      `json:"index"`
	Content  string   `json:"content"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Metadata Metadata `json:"metadata"`
}

// Split chunks text. Cuts prefer the end of a sentence, then whitespace,
// and otherwise fall on a rune boundary so multi-byte characters are
// never split. Each chunk after the first starts inside the previous
// chunk's overlap window, aligned to a word start where possible. Empty
// text yields no chunks.
func Split(text string, opts Options) []Chunk {
	if text == "" {
		return nil
	}
	opts = opts.normalized()
	maxChars := opts.MaxTokens * opts.CharsPerToken
	overlap := opts.OverlapTokens * opts.CharsPerToken

	var chunks []Chunk
	start := 0
	for {
		end := len(text)
		if end-start > maxChars {
			end = findCut(text, start, start+maxChars)
		}

		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: text[start:end],
			Start:   start,
			End:     end,
			Metadata: Metadata{
				OriginalLength:  len(text),
				EstimatedTokens: (end - start + opts.CharsPerToken - 1) / opts.CharsPerToken,
			},
		})
		if end >= len(text) {
			break
		}

		start = nextStart(text, start, end, overlap)
	}
	chunks[len(chunks)-1].Metadata.IsComplete = true
	return chunks
}

// findCut picks the end of a chunk starting at start whose hard limit is
// limit. The search for a natural boundary is confined to the back half
// of the chunk so chunks do not shrink pathologically.
func findCut(text string, start, limit int) int {
	floor := start + (limit-start)/2

	// Sentence end: terminal punctuation followed by whitespace.
	for i := limit - 1; i > floor; i-- {
		if isSentenceEnd(text[i-1]) && isSpace(text[i]) {
			return i + 1
		}
	}
	// Paragraph or word boundary: cut just after the whitespace.
	for i := limit - 1; i > floor; i-- {
		if isSpace(text[i]) {
			return i + 1
		}
	}
	return runeFloor(text, limit, start)
}

// nextStart returns where the chunk after [start, end) begins: overlap
// bytes before end, moved forward to the start of a word. It always makes
// progress.
func nextStart(text string, start, end, overlap int) int {
	if overlap <= 0 {
		return end
	}
	next := end - overlap
	if next <= start {
		return end
	}
	next = runeCeil(text, next)
	// Skip the remainder of a word cut by the overlap window.
	if next > 0 && !isSpace(text[next-1]) {
		for next < end && !isSpace(text[next]) {
			next++
		}
	}
	for next < end && isSpace(text[next]) {
		next++
	}
	if next >= end || next <= start {
		return end
	}
	return next
}

// Locate returns the index of the first chunk whose [Start, End) contains
// offset, or -1 if none does.
func Locate(chunks []Chunk, offset int) int {
	for i, c := range chunks {
		if offset >= c.Start && offset < c.End {
			return i
		}
	}
	return -1
}

// Reassemble joins chunk contents, dropping each chunk's overlap with its
// predecessor. Reassemble(Split(t, o)) == t.
func Reassemble(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	buf := make([]byte, 0, chunks[0].Metadata.OriginalLength)
	prevEnd := 0
	for _, c := range chunks {
		skip := prevEnd - c.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(c.Content) {
			buf = append(buf, c.Content[skip:]...)
		}
		prevEnd = c.End
	}
	return string(buf)
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b < utf8.RuneSelf && unicode.IsSpace(rune(b))
}

// runeFloor moves i back to the nearest rune start, not before lo.
func runeFloor(text string, i, lo int) int {
	for i > lo && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	if i == lo {
		// A single rune wider than the limit: take the whole rune.
		_, size := utf8.DecodeRuneInString(text[lo:])
		return lo + size
	}
	return i
}

// runeCeil moves i forward to the nearest rune start.
func runeCeil(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

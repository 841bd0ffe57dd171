package pipeline

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ejmockler/brutalist-mcp/internal/chunker"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Page is the caller's pagination input. Cursor, when set, wins over
// Offset. A zero Limit selects the configured chunk size.
type Page struct {
	Offset int
	Limit  int
	Cursor string
}

// Pagination describes the page served. Offsets are byte offsets into
// the full content.
type Pagination struct {
	Total       int    `json:"total"`
	Offset      int    `json:"offset"`
	Limit       int    `json:"limit"`
	HasMore     bool   `json:"has_more"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	NextCursor  string `json:"next_cursor,omitempty"`
	ChunkStart  int    `json:"chunk_start"`
	ChunkEnd    int    `json:"chunk_end"`
}

const cursorPrefix = "off:"

// EncodeCursor turns an offset into an opaque cursor.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(cursor))
	if err != nil {
		return 0, domain.Wrap(domain.ErrInvalidPagination, "malformed cursor", err)
	}
	s, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, domain.Errorf(domain.ErrInvalidPagination, "malformed cursor %q", cursor)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.Errorf(domain.ErrInvalidPagination, "malformed cursor %q", cursor)
	}
	return n, nil
}

// limitFor applies the default and clamps the page size in characters.
func (c Config) limitFor(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = c.ChunkTokens * c.CharsPerToken
	}
	if c.MinPageSize > 0 && limit < c.MinPageSize {
		limit = c.MinPageSize
	}
	if c.MaxPageSize > 0 && limit > c.MaxPageSize {
		limit = c.MaxPageSize
	}
	return limit
}

// whole describes content served in one piece. Results without a handle
// are served this way: a cursor into them could only be followed by
// running the analysis again.
func whole(content string) Pagination {
	return Pagination{
		Total:       len(content),
		Limit:       len(content),
		TotalChunks: 1,
		ChunkEnd:    len(content),
	}
}

// paginate serves the chunk of content that contains the requested
// offset. Chunk boundaries depend only on the content and the limit, so
// a cursor from one call lands on the next chunk in the following call.
func (c Config) paginate(content string, pg Page) (string, Pagination, error) {
	offset := pg.Offset
	if pg.Cursor != "" {
		n, err := DecodeCursor(pg.Cursor)
		if err != nil {
			return "", Pagination{}, err
		}
		offset = n
	}
	if offset < 0 {
		return "", Pagination{}, domain.Errorf(domain.ErrInvalidPagination, "offset %d is negative", offset)
	}

	limit := c.limitFor(pg.Limit)
	meta := Pagination{Total: len(content), Offset: offset, Limit: limit}
	if content == "" {
		if offset > 0 {
			return "", Pagination{}, domain.Errorf(domain.ErrInvalidPagination, "offset %d is past the end of empty content", offset)
		}
		return "", meta, nil
	}

	chunks := chunker.Split(content, c.chunkOptions(limit))
	idx := chunker.Locate(chunks, offset)
	if idx < 0 {
		return "", Pagination{}, domain.Errorf(domain.ErrInvalidPagination,
			"offset %d is past the end of the content (%d bytes)", offset, len(content))
	}

	ch := chunks[idx]
	meta.ChunkIndex = idx
	meta.TotalChunks = len(chunks)
	meta.ChunkStart = ch.Start
	meta.ChunkEnd = ch.End
	meta.HasMore = idx < len(chunks)-1
	if meta.HasMore {
		meta.NextCursor = EncodeCursor(ch.End)
	}
	return ch.Content, meta, nil
}

func (c Config) chunkOptions(limit int) chunker.Options {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	tokens := limit / cpt
	if tokens < 1 {
		tokens = 1
	}
	return chunker.Options{MaxTokens: tokens, OverlapTokens: c.OverlapTokens, CharsPerToken: cpt}
}

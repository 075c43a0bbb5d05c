// Package docstore chunks policy documents and serves nearest-neighbor
// retrieval over their embeddings.
package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize is the target chunk length in bytes.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the target overlap between adjacent chunks.
	DefaultChunkOverlap = 200
)

// Chunk is a bounded, overlap-padded segment of a policy document. IDs are
// derived from the document ID and chunk content, so re-indexing identical
// content yields identical IDs and byte ranges.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Index      int       `json:"index"`
	StartByte  int       `json:"start_byte"`
	EndByte    int       `json:"end_byte"`
	SourceFile string    `json:"source_file,omitempty"`
	Vector     []float64 `json:"vector,omitempty"`
}

// Chunker splits document text into overlapping chunks whose boundaries are
// snapped to paragraph breaks. A chunk never splits inside a paragraph unless
// a single paragraph exceeds the target size, in which case that paragraph is
// further split by line.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a Chunker with the given target size and overlap.
// Non-positive values fall back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// segment is a half-open byte range over the source text. Segments tile the
// text exactly: each begins where the previous one ends.
type segment struct {
	start int
	end   int
}

// Split chunks content for the given document. The returned chunks are
// ordered, their byte ranges overlap by roughly Overlap bytes, and their
// union covers the full content.
func (c *Chunker) Split(docID uuid.UUID, name, docType, sourceFile, content string) []Chunk {
	if content == "" {
		return nil
	}

	segs := c.segments(content)
	var chunks []Chunk

	start := 0
	segIdx := 0
	for start < len(content) {
		// Advance to the segment containing start.
		for segIdx < len(segs) && segs[segIdx].end <= start {
			segIdx++
		}

		end := start
		for i := segIdx; i < len(segs); i++ {
			end = segs[i].end
			if end-start >= c.Size {
				break
			}
		}

		text := content[start:end]
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         chunkID(docID, start, text),
			DocumentID: docID,
			Name:       name,
			Type:       docType,
			Content:    text,
			Index:      idx,
			StartByte:  start,
			EndByte:    end,
			SourceFile: sourceFile,
		})

		if end >= len(content) {
			break
		}

		// Back up to the closest segment boundary that preserves roughly
		// Overlap bytes of shared context, without losing forward progress.
		next := end
		for i := segIdx; i < len(segs); i++ {
			if segs[i].start <= start {
				continue
			}
			if segs[i].start >= end-c.Overlap {
				next = segs[i].start
				break
			}
		}
		start = next
	}

	return chunks
}

// segments tiles content into paragraph-aligned byte ranges. Paragraphs
// longer than the chunk size are sub-split at line breaks.
func (c *Chunker) segments(content string) []segment {
	var segs []segment
	pos := 0
	for pos < len(content) {
		end := strings.Index(content[pos:], "\n\n")
		var paraEnd int
		if end < 0 {
			paraEnd = len(content)
		} else {
			// Keep the separator attached to the paragraph so segments tile
			// the text with no gaps.
			paraEnd = pos + end + 2
		}

		if paraEnd-pos > c.Size {
			segs = append(segs, c.splitByLine(content, pos, paraEnd)...)
		} else {
			segs = append(segs, segment{start: pos, end: paraEnd})
		}
		pos = paraEnd
	}
	return segs
}

func (c *Chunker) splitByLine(content string, start, end int) []segment {
	var segs []segment
	pos := start
	for pos < end {
		nl := strings.IndexByte(content[pos:end], '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = end
		} else {
			lineEnd = pos + nl + 1
		}
		segs = append(segs, segment{start: pos, end: lineEnd})
		pos = lineEnd
	}
	return segs
}

func chunkID(docID uuid.UUID, start int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s_%d_%s", docID, start, hex.EncodeToString(sum[:])[:16])
}

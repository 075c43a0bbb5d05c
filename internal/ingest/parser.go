package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Span is a paragraph of extracted text located by its byte range in the
// full document. Offsets index into ParsedDocument.FullText, so citation
// anchors survive re-parsing of identical content.
type Span struct {
	Text           string `json:"text"`
	StartByte      int    `json:"start_byte"`
	EndByte        int    `json:"end_byte"`
	Page           int    `json:"page"`
	ParagraphIndex int    `json:"paragraph_index"`
}

// ParsedDocument is an extracted document with paragraph spans and a content
// hash for change detection.
type ParsedDocument struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	FullText    string `json:"full_text"`
	Spans       []Span `json:"spans"`
	Pages       int    `json:"pages"`
}

// Parse splits extracted text into paragraph spans. Pages are delimited by
// form feeds (as emitted by pdftotext) and paragraphs by blank lines. Span
// byte ranges are monotonic, non-overlapping, and always satisfy
// text[span.StartByte:span.EndByte] == span.Text.
func Parse(path, text string) ParsedDocument {
	sum := sha256.Sum256([]byte(text))
	doc := ParsedDocument{
		Path:        path,
		ContentHash: hex.EncodeToString(sum[:]),
		FullText:    text,
	}
	if text == "" {
		return doc
	}

	page := 1
	paragraph := 0
	pos := 0
	for pos <= len(text) {
		ff := strings.IndexByte(text[pos:], '\f')
		var pageEnd int
		if ff < 0 {
			pageEnd = len(text)
		} else {
			pageEnd = pos + ff
		}

		for _, s := range paragraphSpans(text, pos, pageEnd) {
			s.Page = page
			s.ParagraphIndex = paragraph
			doc.Spans = append(doc.Spans, s)
			paragraph++
		}

		if ff < 0 {
			break
		}
		pos = pageEnd + 1
		page++
	}

	doc.Pages = page
	return doc
}

// paragraphSpans splits text[start:end] at blank lines, trimming surrounding
// whitespace while keeping byte offsets anchored to the original text.
func paragraphSpans(text string, start, end int) []Span {
	var spans []Span
	pos := start
	for pos < end {
		sep := strings.Index(text[pos:end], "\n\n")
		var paraEnd int
		if sep < 0 {
			paraEnd = end
		} else {
			paraEnd = pos + sep
		}

		s, e := trimRange(text, pos, paraEnd)
		if e > s {
			spans = append(spans, Span{
				Text:      text[s:e],
				StartByte: s,
				EndByte:   e,
			})
		}

		if sep < 0 {
			break
		}
		pos = paraEnd + 2
	}
	return spans
}

// trimRange shrinks [start, end) to exclude leading and trailing whitespace.
func trimRange(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

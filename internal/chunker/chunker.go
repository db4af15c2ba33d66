// Package chunker splits post content into indexable text chunks.
//
// Posts are typically short, so most content becomes a single chunk.
// Longer content is split on paragraph boundaries with a small overlap
// carried between consecutive chunks to preserve context across the cut.
package chunker

import (
	"regexp"
	"strings"
)

// Config controls chunk sizing.
type Config struct {
	// MaxChunkSize is the maximum characters per chunk.
	MaxChunkSize int

	// MinChunkSize is the minimum size for a trailing chunk;
	// a shorter tail is dropped rather than emitted.
	MinChunkSize int

	// Overlap is the number of characters carried from the end of
	// one chunk into the start of the next.
	Overlap int

	// ShortContentThreshold is the length at or below which content
	// is returned as a single chunk without splitting.
	ShortContentThreshold int
}

// DefaultConfig returns the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:          500,
		MinChunkSize:          50,
		Overlap:               50,
		ShortContentThreshold: 500,
	}
}

// Chunker splits text by paragraphs, packing small paragraphs together
// and splitting oversized ones by sentence. It is pure and deterministic:
// the same input always yields the same chunks.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. A zero-value config field falls back to its default.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = def.MaxChunkSize
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = def.Overlap
	}
	if cfg.ShortContentThreshold <= 0 {
		cfg.ShortContentThreshold = def.ShortContentThreshold
	}
	return &Chunker{cfg: cfg}
}

var paragraphSep = regexp.MustCompile(`\n\s*\n+`)

// Chunk splits text into chunks. Empty or whitespace-only input
// returns nil. Content at or below ShortContentThreshold is returned
// as a single trimmed chunk.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) <= c.cfg.ShortContentThreshold {
		return []string{text}
	}

	return c.mergeAndSplit(splitParagraphs(text))
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range paragraphSep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

func (c *Chunker) mergeAndSplit(paragraphs []string) []string {
	var chunks []string
	current := ""

	for _, para := range paragraphs {
		switch {
		case len(para) > c.cfg.MaxChunkSize:
			// Oversized paragraph: flush, then pack its sentences.
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
			sentenceChunk := ""
			for _, sentence := range splitSentences(para) {
				if len(sentenceChunk)+len(sentence) <= c.cfg.MaxChunkSize {
					if sentenceChunk != "" {
						sentenceChunk += " "
					}
					sentenceChunk += sentence
				} else {
					if sentenceChunk != "" {
						chunks = append(chunks, strings.TrimSpace(sentenceChunk))
					}
					sentenceChunk = sentence
				}
			}
			current = sentenceChunk

		case len(current)+len(para)+2 > c.cfg.MaxChunkSize:
			if current == "" {
				current = para
				break
			}
			chunks = append(chunks, strings.TrimSpace(current))
			if overlap := c.overlapTail(current); overlap != "" {
				current = overlap + " " + para
			} else {
				current = para
			}

		default:
			if current != "" {
				current += "\n\n" + para
			} else {
				current = para
			}
		}
	}

	if tail := strings.TrimSpace(current); len(tail) >= c.cfg.MinChunkSize {
		chunks = append(chunks, tail)
	}

	return chunks
}

// overlapTail returns the text carried into the next chunk. It prefers
// breaking at a word boundary inside the overlap window and returns the
// whole chunk when it is no longer than the overlap itself.
func (c *Chunker) overlapTail(text string) string {
	if len(text) <= c.cfg.Overlap {
		return text
	}
	start := len(text) - c.cfg.Overlap
	if idx := strings.Index(text[start:], " "); idx >= 0 {
		return text[start+idx+1:]
	}
	return text[start:]
}

// splitSentences splits after sentence-ending punctuation followed by
// whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && i+1 < len(text) && isSpace(text[i+1]) {
			if seg := strings.TrimSpace(text[start : i+1]); seg != "" {
				out = append(out, seg)
			}
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Package chunker implements the deterministic text-to-chunks strategies
// the hybrid retriever applies during late chunking, plus the registry
// that resolves a strategy id (or alias) to a Chunker.
package chunker

import "strings"

// Chunk is one ordered slice of a chunked document.
type Chunk struct {
	Index      int
	Text       string
	StartIdx   *int
	EndIdx     *int
	TokenCount *int
}

// Options parametrizes a chunking call. Only the fields relevant to the
// chosen strategy are consulted.
type Options struct {
	MaxChunkChars  int
	OverlapChars   int
	MaxChunkTokens int
	OverlapTokens  int
}

// Chunker is a pure function of (text, options) producing an ordered,
// deterministic chunk list.
type Chunker interface {
	Chunk(text string, opt Options) ([]Chunk, error)
}

func intp(v int) *int { return &v }

// SimpleCharChunker is registered as "simple_char@v1". It slides a fixed
// character window across text, snapping nothing — offsets are exact.
type SimpleCharChunker struct{}

const defaultMaxChunkChars = 500

// Chunk produces consecutive substrings [i, min(n, i+max)); after each
// emission it advances i := max(0, end-overlap), stopping when end == n.
func (SimpleCharChunker) Chunk(text string, opt Options) ([]Chunk, error) {
	max := opt.MaxChunkChars
	if max <= 0 {
		max = defaultMaxChunkChars
	}
	overlap := opt.OverlapChars
	if overlap < 0 {
		overlap = 0
	}
	n := len(text)
	if n == 0 {
		return []Chunk{}, nil
	}
	var out []Chunk
	idx := 0
	i := 0
	for {
		end := i + max
		if end > n {
			end = n
		}
		start := i
		out = append(out, Chunk{
			Index:    idx,
			Text:     text[start:end],
			StartIdx: intp(start),
			EndIdx:   intp(end),
		})
		idx++
		if end == n {
			break
		}
		next := end - overlap
		if next <= i {
			next = end
		}
		i = next
	}
	return out, nil
}

// SimpleTokenLikeChunker is registered as "simple_token_like@v1". Tokens
// are whitespace-split; character offsets are not reported.
//
// TODO: replace with a real tokenizer (tiktoken/HF) when one is available.
type SimpleTokenLikeChunker struct{}

const defaultMaxChunkTokens = 200

// Chunk produces space-joined token runs of length <= max, sliding by
// max-overlap tokens the same way SimpleCharChunker slides characters.
func (SimpleTokenLikeChunker) Chunk(text string, opt Options) ([]Chunk, error) {
	max := opt.MaxChunkTokens
	if max <= 0 {
		max = defaultMaxChunkTokens
	}
	overlap := opt.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	tokens := strings.Fields(text)
	n := len(tokens)
	if n == 0 {
		return []Chunk{}, nil
	}
	var out []Chunk
	idx := 0
	i := 0
	for {
		end := i + max
		if end > n {
			end = n
		}
		count := end - i
		out = append(out, Chunk{
			Index:      idx,
			Text:       strings.Join(tokens[i:end], " "),
			TokenCount: intp(count),
		})
		idx++
		if end == n {
			break
		}
		next := end - overlap
		if next <= i {
			next = end
		}
		i = next
	}
	return out, nil
}

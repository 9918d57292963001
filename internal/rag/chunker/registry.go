package chunker

import "fmt"

const (
	IDSimpleChar      = "simple_char@v1"
	IDSimpleTokenLike = "simple_token_like@v1"
	aliasDefault      = "default"
)

// Registry resolves a chunker id, optionally through an alias table, to a
// Chunker. It is read-only after construction and safe for concurrent use.
type Registry struct {
	chunkers map[string]Chunker
	aliases  map[string]string
}

// NewRegistry returns a registry pre-populated with the two built-in
// deterministic strategies and the "default" alias.
func NewRegistry() *Registry {
	r := &Registry{
		chunkers: map[string]Chunker{
			IDSimpleChar:      SimpleCharChunker{},
			IDSimpleTokenLike: SimpleTokenLikeChunker{},
		},
		aliases: map[string]string{
			aliasDefault: IDSimpleTokenLike,
		},
	}
	return r
}

// Register adds or replaces a chunker under id.
func (r *Registry) Register(id string, c Chunker) {
	r.chunkers[id] = c
}

// Alias maps alias to an existing chunker id.
func (r *Registry) Alias(alias, id string) {
	r.aliases[alias] = id
}

// Resolve returns the chunker registered under id, following one level of
// alias indirection.
func (r *Registry) Resolve(id string) (Chunker, error) {
	if id == "" {
		id = aliasDefault
	}
	if target, ok := r.aliases[id]; ok {
		id = target
	}
	c, ok := r.chunkers[id]
	if !ok {
		return nil, fmt.Errorf("chunker: unknown id %q", id)
	}
	return c, nil
}

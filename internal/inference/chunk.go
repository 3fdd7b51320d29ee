package inference

// ChunkKind discriminates the variants of a streamed Chunk.
type ChunkKind int

const (
	// ChunkEmpty carries neither text nor a tool call. Consumers skip it.
	ChunkEmpty ChunkKind = iota

	// ChunkText carries a fragment of the model's prose reply.
	ChunkText

	// ChunkToolCall carries a function call requested by the model.
	ChunkToolCall
)

// ToolCall is a function invocation requested by the model. Args hold
// the decoded JSON arguments keyed by parameter name.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Chunk is one unit of a streamed model response. Exactly one of Text
// or Call is meaningful, selected by Kind.
type Chunk struct {
	Kind ChunkKind
	Text string
	Call *ToolCall
}

// TextChunk wraps a prose fragment.
func TextChunk(text string) Chunk {
	return Chunk{Kind: ChunkText, Text: text}
}

// ToolCallChunk wraps a requested function call.
func ToolCallChunk(name string, args map[string]any) Chunk {
	return Chunk{Kind: ChunkToolCall, Call: &ToolCall{Name: name, Args: args}}
}

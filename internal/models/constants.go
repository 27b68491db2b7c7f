package models

// Stored field names. FieldContent is canonical; the others are legacy names
// written by older ingestion paths and are only read.
const (
	FieldContent    = "content"
	FieldTextChunk  = "text_chunk"
	FieldText       = "text"
	FieldEmbedding  = "embedding"
	FieldSource     = "source"
	FieldPage       = "page"
	FieldChunkIndex = "chunk_index"
	FieldChunkID    = "chunk_id"
)

const (
	VectorIndexName       = "vector_index"
	DefaultNumLists       = 100
	DefaultHNSWM          = 16
	DefaultEfConstruction = 64
	DefaultTopK           = 5
	ContextSeparator      = "\n\n"
)

const (
	SafeErrorMessage = "An error occurred while processing your request. Please try again later."
	NoQueryMessage   = "Please provide a question."
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// PrimarySystemMessage constrains the primary assistant to the retrieved context.
	PrimarySystemMessage = `You are a helpful mobile store assistant. Answer concisely using any retrieved context.
Do not answer if the question is unrelated to the context.`

	PrimaryPromptTemplate = `%s
Context:
%s

Question: %s
Answer:
`

	// FallbackPromptTemplate is self-contained: it restates the role and rules in full
	// and is a little more permissive about thin context.
	FallbackPromptTemplate = `You are a helpful mobile store assistant.
Use the context below to answer the user's query concisely and accurately.
If the context is empty or only partially relevant, answer from what it does contain and say what is missing.
Answer in a professional manner and check the context carefully before answering.

Context:
%s

Question: %s
Answer:
`
)

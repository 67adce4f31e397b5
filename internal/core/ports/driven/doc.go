// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingProvider: Turns text into fixed-dimension vectors
//   - VectorIndex: Stores vectors and answers similarity queries
//   - DocumentStore: Document and chunk persistence
//   - DocumentSource: Supplies captured documents with parsed metadata
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - GenerationService: Turns retrieved context into a natural-language
//     answer. Without it, only raw retrieval is available.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven

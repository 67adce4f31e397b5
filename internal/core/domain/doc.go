// Package domain defines the core business entities for Strata.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies beyond small utility modules and defines
// the fundamental types:
//
//   - Document: A captured technical document with its metadata header
//   - Chunk: The smallest retrievable unit of document text
//   - Predicate: A structured metadata filter applied during search
//   - RetrievedChunk: A scored search hit
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse.
package domain

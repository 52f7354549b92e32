// Package reembed regenerates stored embedding vectors in batches.
//
// When the embedding model changes, previously stored vectors no longer
// live in the same space as freshly embedded queries and similarity scores
// become meaningless. The Reembedder walks the store (or one collection),
// embeds the stored texts again with the current embedder, and writes the
// records back. Progress is reported to a writer as the run advances.
package reembed

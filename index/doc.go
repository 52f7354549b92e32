// Package index turns the text fields of a collection into stored embedding
// records.
//
// The Indexer embeds each field concurrently on a worker pool, retries
// rate-limited embedding calls with exponential backoff, and stores one
// record per field. Failures are isolated per field: a partial run keeps its
// successes and reports the failed categories through *PartialError.
package index

// Package rank scores embedding records against a query vector by cosine
// similarity and returns the best matches in a deterministic order.
//
// Ranking is a pure in-memory computation over a candidate sequence. Ties
// on similarity break toward newer records, then toward smaller record IDs,
// so the same store contents and query always produce the same result list.
package rank

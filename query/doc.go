// Copyright 2026 Aperture OSS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package query orchestrates retrieval and answer composition.
//
// A query flows through fixed stages: validate the request, embed the query
// text, score stored records by cosine similarity, and, for Answer, compose
// a natural-language response from the best matches. Errors carry the stage
// where they occurred via *StageError so callers can map validation
// failures and provider failures to different outcomes.
//
// Search returns ranked records; Answer additionally prompts the generation
// model with the retrieved text, bounded by a character budget, and reports
// a confidence derived from the top similarity score.
package query

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aperture-oss/knowledge/index"
	"github.com/aperture-oss/knowledge/query"
)

// Default topK values when a request omits top_k. Answering reads fewer
// records than raw search so the generation prompt stays focused.
const (
	defaultAnswerTopK = 5
	defaultSearchTopK = 10
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Answer generation can take a while, so the default is generous.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// RateLimit is the sustained request rate allowed per IP
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
}

// Engine is the interface the server calls to serve requests.
// *knowledge.KnowledgeBase satisfies it; tests inject a fake.
type Engine interface {
	// Index embeds and stores the text fields of a collection.
	Index(ctx context.Context, collectionID string, fields map[string]string, opts *index.IndexOptions) (int, error)
	// Search returns ranked records for a query.
	Search(ctx context.Context, q query.Query) (*query.SearchResponse, error)
	// Answer composes a natural-language answer for a query.
	Answer(ctx context.Context, q query.Query) (*query.AnswerResponse, error)
	// DeleteCollection removes all records of a collection.
	DeleteCollection(ctx context.Context, collectionID string) (int, error)
}

// Server is the HTTP server that exposes the knowledge engine.
type Server struct {
	// engine handles all indexing and retrieval requests.
	engine Engine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus instruments for this instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// indexRequest is the JSON body for POST /api/index.
type indexRequest struct {
	// CollectionId identifies the collection the fields belong to.
	CollectionId string `json:"collection_id"`
	// Fields maps category labels to the text to embed.
	Fields map[string]string `json:"fields"`
	// Attributes are optional key/value pairs attached to every record.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// indexResponse is the JSON response for POST /api/index.
type indexResponse struct {
	// Indexed is how many fields were embedded and stored.
	Indexed int `json:"indexed"`
	// Failed lists categories that could not be indexed, if any.
	Failed []string `json:"failed,omitempty"`
}

// queryRequest is the JSON body for POST /api/query and POST /api/search.
type queryRequest struct {
	// Query is the natural-language question or search phrase.
	Query string `json:"query"`
	// CollectionId optionally restricts retrieval to one collection.
	CollectionId string `json:"collection_id,omitempty"`
	// Category optionally restricts retrieval to one category label.
	Category string `json:"category,omitempty"`
	// TopK is how many results to return. Omitted means the endpoint
	// default; an explicit non-positive value is rejected.
	TopK *int `json:"top_k,omitempty"`
}

// answerResponse is the JSON response for POST /api/query.
type answerResponse struct {
	Answer     string         `json:"answer"`
	Confidence float32        `json:"confidence"`
	Sources    []query.Source `json:"sources"`
}

// searchResult is one entry in the /api/search response.
type searchResult struct {
	CollectionId string            `json:"collection_id"`
	Category     string            `json:"category"`
	Text         string            `json:"text"`
	Similarity   float32           `json:"similarity"`
	CreatedAt    time.Time         `json:"created_at"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Results []searchResult `json:"results"`
	Total   int            `json:"total"`
}

// deleteRequest is the JSON body for POST /api/delete.
type deleteRequest struct {
	// CollectionId identifies the collection to remove.
	CollectionId string `json:"collection_id"`
}

// deleteResponse is the JSON response for POST /api/delete.
type deleteResponse struct {
	// Deleted is how many records were removed.
	Deleted int `json:"deleted"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
	// Stage names the query stage that failed, when known.
	Stage string `json:"stage,omitempty"`
}

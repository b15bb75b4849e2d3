// Package websearch provides the web_search tool backed by Tavily.
package websearch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow/tools", "websearch")

// ToolName is the registered name of the tool.
const ToolName = "web_search"

// DefaultMaxResults is applied when the model does not ask for a count.
const DefaultMaxResults = 5

// ErrMissingAPIKey is returned when no Tavily key is configured.
var ErrMissingAPIKey = errors.New("websearch: Tavily API key is not set")

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query      string `json:"query" jsonschema:"description=The query to search the web for." validate:"required"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=The maximum number of results to return.,default=5" validate:"gte=0,lte=20"`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// Search calls the Tavily search API.
type Search struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New returns a Search using apiKey.
func New(apiKey string) (*Search, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Search{
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}, nil
}

// WithBaseURL overrides the Tavily endpoint.
func (s *Search) WithBaseURL(baseURL string) *Search {
	s.baseURL = baseURL
	return s
}

// WithHTTPClient sets the HTTP client.
func (s *Search) WithHTTPClient(client *http.Client) *Search {
	s.httpClient = client
	return s
}

// Descriptor returns the web_search tool.
func (s *Search) Descriptor() (tools.Descriptor, error) {
	return tools.NewTypedTool(ToolName,
		"Search the web and return the most relevant results with an aggregated answer.",
		s.Run)
}

// Run performs the search.
func (s *Search) Run(ctx context.Context, req *SearchRequest, ch tools.Channel) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	client := tavilygo.NewClient(s.apiKey)
	if s.baseURL != "" {
		client.BaseURL = s.baseURL
	}
	if s.httpClient != nil {
		client.HTTPClient = s.httpClient
	}

	if ch != nil {
		ch.Emit(tools.LevelInfo, fmt.Sprintf("searching: %s", req.Query))
	}

	searchResp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	res := &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}
	if len(res.Results) > maxResults {
		res.Results = res.Results[:maxResults]
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"query", req.Query,
		"results", len(res.Results),
	)
	return res, nil
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}

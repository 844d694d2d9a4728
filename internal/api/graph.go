package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// GraphNode is an entity in the knowledge graph.
type GraphNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Label      string         `json:"label,omitempty"`
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// DisplayName prefers the name field and falls back to the legacy label.
func (n GraphNode) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// GraphEdge is a relation between two nodes.
type GraphEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Type     string  `json:"type,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

// GraphData is a node/edge subgraph.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// EntityGraphResponse wraps a subgraph around an entity or the overview.
type EntityGraphResponse struct {
	Success bool      `json:"success"`
	Data    GraphData `json:"data"`
	Message string    `json:"message,omitempty"`
}

// RelatedDocument is a document reachable from another through shared entities.
type RelatedDocument struct {
	DocID          string   `json:"doc_id"`
	Distance       int      `json:"distance"`
	Score          float64  `json:"score"`
	SharedEntities []string `json:"shared_entities"`
}

// DocumentGraphResponse is the subgraph of a document and its neighbours.
type DocumentGraphResponse struct {
	Success     bool              `json:"success"`
	Data        GraphData         `json:"data"`
	RelatedDocs []RelatedDocument `json:"related_docs"`
}

// GraphStatsResponse counts nodes and edges by type.
type GraphStatsResponse struct {
	TotalNodes int            `json:"total_nodes"`
	TotalEdges int            `json:"total_edges"`
	NodeTypes  map[string]int `json:"node_types"`
	EdgeTypes  map[string]int `json:"edge_types"`
}

// EntitySearchResponse lists matching entities.
type EntitySearchResponse struct {
	Success  bool        `json:"success"`
	Entities []GraphNode `json:"entities"`
}

// EntityGraph returns the neighbourhood of entityName up to depth hops (default 2).
func (c *Client) EntityGraph(ctx context.Context, entityName string, depth int) (*EntityGraphResponse, error) {
	if depth <= 0 {
		depth = 2
	}
	query := url.Values{"entity_name": {entityName}, "depth": {strconv.Itoa(depth)}}
	var out EntityGraphResponse
	if err := c.doJSON(ctx, http.MethodGet, "/graph/entity", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DocumentGraph returns documents related to docID within maxHops (default 2).
func (c *Client) DocumentGraph(ctx context.Context, docID string, maxHops int) (*DocumentGraphResponse, error) {
	if maxHops <= 0 {
		maxHops = 2
	}
	query := url.Values{"doc_id": {docID}, "max_hops": {strconv.Itoa(maxHops)}}
	var out DocumentGraphResponse
	if err := c.doJSON(ctx, http.MethodGet, "/graph/document", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphOverview returns up to limit nodes of the whole graph (default 100).
func (c *Client) GraphOverview(ctx context.Context, limit int) (*EntityGraphResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	var out EntityGraphResponse
	if err := c.doJSON(ctx, http.MethodGet, "/graph/overview", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphStats returns node and edge counts.
func (c *Client) GraphStats(ctx context.Context) (*GraphStatsResponse, error) {
	var out GraphStatsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/graph/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cypher runs a raw graph query and returns the untouched JSON result.
func (c *Client) Cypher(ctx context.Context, queryText string, parameters map[string]any) (json.RawMessage, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	payload := map[string]any{"query": queryText, "parameters": parameters}
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/graph/cypher", nil, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchEntities finds entities by name, optionally filtered by type (limit default 20).
func (c *Client) SearchEntities(ctx context.Context, queryText string, entityType string, limit int) (*EntitySearchResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{"query": {queryText}, "limit": {strconv.Itoa(limit)}}
	if entityType != "" {
		query.Set("entity_type", entityType)
	}
	var out EntitySearchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/graph/search", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RAGGraph returns the scene graph for kind work, life or mem.
func (c *Client) RAGGraph(ctx context.Context, kind string, depth int) (*GraphData, error) {
	if depth <= 0 {
		depth = 2
	}
	query := url.Values{"type": {kind}, "depth": {strconv.Itoa(depth)}}
	var out GraphData
	if err := c.doJSON(ctx, http.MethodGet, "/rag/graph", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

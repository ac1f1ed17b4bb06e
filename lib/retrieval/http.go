// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPGateway queries a Qdrant-style vector search endpoint that performs
// embedding inference server-side: the query travels as text and the
// server resolves it to a vector before searching.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	collection string
	model      string
	apiKey     string
}

// NewHTTPGateway returns a gateway that searches the named collection at
// baseURL. The model names the server-side inference model used to embed
// query text; empty means the collection default. The apiKey may be empty
// for unauthenticated endpoints. Request timeouts are the caller's to set
// on httpClient.
func NewHTTPGateway(httpClient *http.Client, baseURL, collection, model, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		model:      model,
		apiKey:     apiKey,
	}
}

// queryRequest is the wire shape of a points/query call with server-side
// inference. The nested query object carries the raw text.
type queryRequest struct {
	Query       queryText `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type queryText struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type queryResponse struct {
	Result struct {
		Points []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Text   string `json:"text"`
				Source string `json:"source"`
			} `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

// Search implements Gateway. Results preserve the server's ranking order.
func (gateway *HTTPGateway) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	body, err := json.Marshal(queryRequest{
		Query:       queryText{Text: query, Model: gateway.model},
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshaling query: %w", err)
	}

	endpoint := gateway.baseURL + "/collections/" + gateway.collection + "/points/query"
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if gateway.apiKey != "" {
		httpRequest.Header.Set("api-key", gateway.apiKey)
	}

	httpResponse, err := gateway.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("retrieval: querying %s: %w", gateway.collection, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))
		return nil, fmt.Errorf("retrieval: HTTP %d from %s: %s",
			httpResponse.StatusCode, gateway.collection, strings.TrimSpace(string(detail)))
	}

	var decoded queryResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("retrieval: decoding response: %w", err)
	}

	documents := make([]Document, 0, len(decoded.Result.Points))
	for _, point := range decoded.Result.Points {
		documents = append(documents, Document{
			Text:   point.Payload.Text,
			Source: point.Payload.Source,
			Score:  point.Score,
		})
	}
	return documents, nil
}

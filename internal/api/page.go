package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Pagination describes the page envelope some list endpoints return.
type Pagination struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
}

// Page is the canonical list result. The backend sometimes returns a bare
// JSON array and sometimes a {results, count, next, previous} envelope;
// DecodeList folds both into this one shape.
type Page[T any] struct {
	Results    []T
	Pagination *Pagination
}

type listEnvelope[T any] struct {
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// DecodeList normalizes a list response body.
func DecodeList[T any](data []byte) (Page[T], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Page[T]{Results: []T{}}, nil
	}

	if trimmed[0] == '[' {
		var results []T
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return Page[T]{}, fmt.Errorf("parse list: %w", err)
		}
		return Page[T]{Results: results}, nil
	}

	var env listEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Page[T]{}, fmt.Errorf("parse page envelope: %w", err)
	}
	page := Page[T]{
		Results: env.Results,
		Pagination: &Pagination{
			Count: env.Count,
		},
	}
	if page.Results == nil {
		page.Results = []T{}
	}
	if env.Next != nil {
		page.Pagination.Next = *env.Next
	}
	if env.Previous != nil {
		page.Pagination.Previous = *env.Previous
	}
	return page, nil
}

// ListOptions are the pagination and filter parameters for list fetches.
// Zero values are omitted from the query string.
type ListOptions struct {
	Page     int
	PageSize int
	Status   string
	Property string
}

// Query renders the options as URL query parameters.
func (o ListOptions) Query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Property != "" {
		q.Set("property", o.Property)
	}
	return q
}

// FetchList performs an authenticated GET against a list endpoint and
// normalizes the response shape.
func FetchList[T any](ctx context.Context, c *Client, path string, opts ListOptions) (Page[T], error) {
	raw, err := c.GetRaw(ctx, path, opts.Query())
	if err != nil {
		return Page[T]{}, err
	}
	return DecodeList[T](raw)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/modoterra/provdash/pkg/core"
)

// Backend paths, relative to the API root.
const (
	PathLogin      = "/auth/login"
	PathInterfaces = "/provisioning/interfaces"
	PathStats      = "/provisioning/interfaces/stats"
	PathLogStream  = "/logs/stream"
)

// Query defaults used when a caller leaves a field empty.
const (
	DefaultSortBy    = "pri_id"
	DefaultSortDir   = "asc"
	DefaultGroupBy   = "status"
	DefaultStatsFrom = "2020-01-01"
	DefaultStatsTo   = "2030-01-01"
)

// GroupByFields are the aggregation keys the stats endpoint accepts.
var GroupByFields = []string{"status", "error_code", "ne_service"}

// Login exchanges credentials for a bearer token and stores it in the session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(password) < 3 {
		return "", fmt.Errorf("username and password must be at least 3 characters")
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.Request(ctx, http.MethodPost, PathLogin, RequestOptions{Body: body}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", &DecodeError{What: "login", Err: errEmptyToken}
	}
	if err := c.tokens.SetToken(resp.AccessToken); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	c.logger.Info("logged in", "user", username)
	return resp.AccessToken, nil
}

// Logout forgets the stored token. The backend keeps no server-side session.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// InterfaceQuery selects one page of interface records.
type InterfaceQuery struct {
	Filters core.FilterSet
	Cursor  core.PageCursor
	SortBy  string
	SortDir string
}

// Values encodes the query as request parameters.
func (q InterfaceQuery) Values() url.Values {
	v := q.Filters.Values()
	page := q.Cursor.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.Cursor.Size > 0 {
		v.Set("page_size", strconv.Itoa(q.Cursor.Size))
	}
	sortBy, sortDir := q.SortBy, q.SortDir
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	if sortDir == "" {
		sortDir = DefaultSortDir
	}
	v.Set("sort_by", sortBy)
	v.Set("sort_dir", sortDir)
	return v
}

// ListInterfaces fetches one page and normalizes it to the canonical envelope.
func (c *Client) ListInterfaces(ctx context.Context, q InterfaceQuery) (core.InterfacePage, error) {
	body, err := c.do(ctx, http.MethodGet, PathInterfaces, RequestOptions{Params: q.Values()})
	if err != nil {
		return core.InterfacePage{}, err
	}
	return DecodeInterfacePage(body, q.Cursor)
}

// GetInterface fetches a single record by id.
func (c *Client) GetInterface(ctx context.Context, id int64) (*core.Interface, error) {
	path := PathInterfaces + "/" + strconv.FormatInt(id, 10)
	body, err := c.do(ctx, http.MethodGet, path, RequestOptions{})
	if err != nil {
		return nil, err
	}
	return DecodeInterface(body)
}

// StatsQuery selects an aggregation over a date range.
type StatsQuery struct {
	GroupBy string
	From    string
	To      string
}

// Validate rejects group keys the backend does not support.
func (q StatsQuery) Validate() error {
	if q.GroupBy == "" {
		return nil
	}
	for _, f := range GroupByFields {
		if q.GroupBy == f {
			return nil
		}
	}
	return fmt.Errorf("group_by must be one of %s, got %q", strings.Join(GroupByFields, ", "), q.GroupBy)
}

// Values encodes the query with defaults applied.
func (q StatsQuery) Values() url.Values {
	v := url.Values{}
	v.Set("group_by", orDefault(q.GroupBy, DefaultGroupBy))
	v.Set("from", orDefault(q.From, DefaultStatsFrom))
	v.Set("to", orDefault(q.To, DefaultStatsTo))
	return v
}

// Stats fetches aggregated counts.
func (c *Client) Stats(ctx context.Context, q StatsQuery) ([]core.StatBucket, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, PathStats, RequestOptions{Params: q.Values()})
	if err != nil {
		return nil, err
	}
	return DecodeStats(body)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

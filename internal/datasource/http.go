// Package datasource provides the tree.DataSource implementations: an HTTP
// client for the remote tree API and an in-process adapter over the service.
package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/lazytree/internal/apperr"
	"github.com/starford/lazytree/internal/tree"
)

// StatusError is a non-2xx response from the tree API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("tree api: http %d: %s", e.StatusCode, msg)
}

// Unwrap reports every status error as a transport failure, plus the remote
// store sentinel matching the status code.
func (e *StatusError) Unwrap() []error {
	errs := []error{apperr.ErrTransport}
	switch e.StatusCode {
	case http.StatusNotFound:
		errs = append(errs, apperr.ErrNotFound)
	case http.StatusConflict:
		errs = append(errs, apperr.ErrConflict)
	case http.StatusBadRequest:
		errs = append(errs, apperr.ErrInvalidInput)
	}
	return errs
}

// HTTP talks to the tree API over HTTP.
type HTTP struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ tree.DataSource   = (*HTTP)(nil)
	_ tree.ParentLister = (*HTTP)(nil)
)

// NewHTTP creates a client for the API mounted at baseURL, e.g.
// http://localhost:8080/api. token is sent as a Bearer token when not empty.
func NewHTTP(baseURL, token string, timeout time.Duration) (*HTTP, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("datasource: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("datasource: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("datasource: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("datasource: invalid base url host")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type nodesResponse struct {
	Nodes []tree.Record `json:"nodes"`
}

type editRequest struct {
	Node   string       `json:"node"`
	Parent *tree.NodeID `json:"parent"`
}

func parentRef(id tree.NodeID) *tree.NodeID {
	if id == tree.NoID {
		return nil
	}
	return &id
}

// FetchRoots lists the top-level nodes.
func (c *HTTP) FetchRoots(ctx context.Context) ([]tree.Record, error) {
	var out nodesResponse
	if err := c.do(ctx, http.MethodGet, "/tree/getfilter/?parentId=", nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// FetchChildren lists the direct children of parentID.
func (c *HTTP) FetchChildren(ctx context.Context, parentID tree.NodeID) ([]tree.Record, error) {
	var out nodesResponse
	if err := c.do(ctx, http.MethodGet, "/tree/getfilter/?parentId="+parentID.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// FetchFiltered lists the nodes matching key with their children embedded.
func (c *HTTP) FetchFiltered(ctx context.Context, key string) ([]tree.Record, error) {
	var out nodesResponse
	if err := c.do(ctx, http.MethodGet, "/tree/getfilter/?filter="+url.QueryEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// CreateNode creates a node under parentID.
func (c *HTTP) CreateNode(ctx context.Context, parentID tree.NodeID, label string) (tree.Record, error) {
	var out tree.Record
	body := editRequest{Node: label, Parent: parentRef(parentID)}
	if err := c.do(ctx, http.MethodPost, "/tree/create", body, &out); err != nil {
		return tree.Record{}, err
	}
	return out, nil
}

// UpdateNode relabels id and moves it under parentID.
func (c *HTTP) UpdateNode(ctx context.Context, id tree.NodeID, label string, parentID tree.NodeID) (tree.Record, error) {
	var out tree.Record
	body := editRequest{Node: label, Parent: parentRef(parentID)}
	if err := c.do(ctx, http.MethodPatch, "/tree/update/"+id.String(), body, &out); err != nil {
		return tree.Record{}, err
	}
	return out, nil
}

// DeleteNode removes id and its subtree.
func (c *HTTP) DeleteNode(ctx context.Context, id tree.NodeID) error {
	return c.do(ctx, http.MethodDelete, "/tree/delete/"+id.String(), nil, nil)
}

// ValidParents lists the nodes id may be moved under.
func (c *HTTP) ValidParents(ctx context.Context, id tree.NodeID) ([]tree.Record, error) {
	var out struct {
		ValidParents []tree.Record `json:"validParents"`
	}
	if err := c.do(ctx, http.MethodGet, "/tree/dropdown/?id="+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.ValidParents, nil
}

func (c *HTTP) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("datasource: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("datasource: %w: %w", apperr.ErrTransport, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("datasource: %s %s: %w: %w", method, path, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("datasource: decode %s %s: %w: %w", method, path, apperr.ErrMapping, err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}

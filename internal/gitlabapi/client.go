// Package gitlabapi is a minimal GitLab REST client used as a fallback
// source of LFS lock data when the line-oriented git-lfs output is not
// available or not trusted.
package gitlabapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/schema"
)

// Client talks to one GitLab instance's v4 API with a private token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a client for the given host (e.g. "gitlab.com").
func NewClient(host, token string) *Client {
	return &Client{
		baseURL: "https://" + host + "/api/v4",
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL constructs a client against an explicit API base
// URL. Used by tests and non-standard deployments.
func NewClientWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type lockPayload struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
}

// Locks lists the LFS locks of a project. project is either a numeric id
// or a group/name path.
func (c *Client) Locks(ctx context.Context, project string) ([]schema.LockRecord, error) {
	var payload []lockPayload
	if err := c.do(ctx, http.MethodGet, c.locksURL(project), nil, &payload); err != nil {
		return nil, err
	}
	records := make([]schema.LockRecord, 0, len(payload))
	for _, p := range payload {
		records = append(records, schema.LockRecord{Path: p.Path, Owner: p.Owner.Name, ID: p.ID})
	}
	return records, nil
}

// CreateLock locks a path in the project.
func (c *Client) CreateLock(ctx context.Context, project, path string) (schema.LockRecord, error) {
	body := map[string]string{"path": path}
	var payload lockPayload
	if err := c.do(ctx, http.MethodPost, c.locksURL(project), body, &payload); err != nil {
		return schema.LockRecord{}, err
	}
	return schema.LockRecord{Path: payload.Path, Owner: payload.Owner.Name, ID: payload.ID}, nil
}

// DeleteLock releases a lock by id.
func (c *Client) DeleteLock(ctx context.Context, project, lockID string) error {
	u := c.locksURL(project) + "/" + url.PathEscape(lockID) + "/unlock"
	return c.do(ctx, http.MethodDelete, u, nil, nil)
}

func (c *Client) locksURL(project string) string {
	return c.baseURL + "/projects/" + url.PathEscape(project) + "/lfs/locks"
}

func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &schema.TransportError{Op: method + " " + u, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &schema.TransportError{
			Op:     method + " " + u,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, gitcmd.Truncate(string(detail), 200)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &schema.TransportError{Op: method + " " + u, Detail: "bad response: " + err.Error()}
	}
	return nil
}

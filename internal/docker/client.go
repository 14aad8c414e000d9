package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

type Client struct {
	http *http.Client
}

// APIError is a non-2xx answer from the engine.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docker api %s %s failed (%d): %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the engine, e.g. an unknown
// container name.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ContainerInspect is the subset of /containers/{id}/json the log source uses.
type ContainerInspect struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		StartedAt string `json:"StartedAt"`
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
	} `json:"State"`
}

// NewClient talks to the Docker Engine API over a unix socket. Follow-mode log
// streams are long lived, so the client has no overall timeout; callers bound
// requests with their context.
func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewClientWithHTTP(&http.Client{Transport: transport})
}

// NewClientWithHTTP uses h for every request; h must route "http://unix/..."
// to the engine.
func NewClientWithHTTP(h *http.Client) *Client {
	return &Client{http: h}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/_ping", nil)
	return err
}

// InspectContainer accepts a container ID or name.
func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerInspect, error) {
	b, err := c.do(ctx, http.MethodGet, "/containers/"+url.PathEscape(id)+"/json", nil)
	if err != nil {
		return ContainerInspect{}, err
	}
	var out ContainerInspect
	if err := json.Unmarshal(b, &out); err != nil {
		return ContainerInspect{}, err
	}
	return out, nil
}

func (c *Client) Logs(ctx context.Context, id string, since time.Time, follow bool, tail int) (io.ReadCloser, error) {
	q := url.Values{}
	// nginx in the official image writes the access log to stdout.
	q.Set("stdout", "1")
	q.Set("stderr", "0")
	q.Set("timestamps", "1")
	if follow {
		q.Set("follow", "1")
	}
	if !since.IsZero() {
		q.Set("since", fmt.Sprintf("%d", since.Unix()))
	}
	if tail > 0 {
		q.Set("tail", fmt.Sprintf("%d", tail))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path.Join("/containers", id, "logs")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return nil, &APIError{Method: http.MethodGet, Path: "/containers/" + id + "/logs", StatusCode: res.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return res.Body, nil
}

func (c *Client) do(ctx context.Context, method, p string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+p, reader)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, &APIError{Method: method, Path: p, StatusCode: res.StatusCode, Message: msg}
	}
	return b, nil
}

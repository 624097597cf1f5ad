// Package agentclient is the controller's HTTP client for the agent
// surface in internal/httpapi — one method per endpoint, mirroring the
// request/response shape on the wire.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/httpapi"
	"github.com/archetype-labs/agent/internal/model"
	"github.com/sirupsen/logrus"
)

// maxRetries bounds how many times a transient failure (connection
// refused, timeout, 5xx) is retried before giving up, matching spec
// section 7's "retry with backoff" rule for KindAgentUnavailable.
const maxRetries = 3

// Client talks to one agent's HTTP API over a base URL such as
// "http://10.0.1.5:7000".
type Client struct {
	baseURL    string
	authSecret string
	http       *http.Client
	log        *logrus.Entry
}

func New(baseURL, authSecret string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		baseURL:    baseURL,
		authSecret: authSecret,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Deploy(ctx context.Context, lab model.Lab) (httpapi.DeployResponse, error) {
	var resp httpapi.DeployResponse
	err := c.call(ctx, http.MethodPost, "/deploy", httpapi.DeployRequest{Lab: lab}, &resp)
	return resp, err
}

func (c *Client) NodeAction(ctx context.Context, labID, nodeName, action string, node model.Node, networkNames []string) (httpapi.NodeActionResponse, error) {
	var resp httpapi.NodeActionResponse
	path := fmt.Sprintf("/nodes/%s/%s/%s", labID, nodeName, action)
	err := c.call(ctx, http.MethodPost, path, httpapi.NodeActionRequest{Node: node, NetworkNames: networkNames}, &resp)
	return resp, err
}

func (c *Client) CreateLink(ctx context.Context, labID string, a, b httpapi.LinkEndpoint) (httpapi.Result, error) {
	var resp httpapi.Result
	path := fmt.Sprintf("/labs/%s/links", labID)
	err := c.call(ctx, http.MethodPost, path, httpapi.LinkRequest{A: a, B: b}, &resp)
	return resp, err
}

func (c *Client) DeleteLink(ctx context.Context, labID, linkID string) (httpapi.Result, error) {
	var resp httpapi.Result
	path := fmt.Sprintf("/labs/%s/links/%s", labID, linkID)
	err := c.call(ctx, http.MethodDelete, path, nil, &resp)
	return resp, err
}

func (c *Client) IsolateInterface(ctx context.Context, labID, nodeName, iface string) (httpapi.Result, error) {
	var resp httpapi.Result
	path := fmt.Sprintf("/labs/%s/interfaces/%s/%s/isolate", labID, nodeName, iface)
	err := c.call(ctx, http.MethodPost, path, nil, &resp)
	return resp, err
}

func (c *Client) RestoreInterface(ctx context.Context, labID, nodeName, iface string, peer httpapi.LinkEndpoint) (httpapi.Result, error) {
	var resp httpapi.Result
	path := fmt.Sprintf("/labs/%s/interfaces/%s/%s/restore", labID, nodeName, iface)
	err := c.call(ctx, http.MethodPost, path, httpapi.InterfaceRestoreRequest{Peer: peer}, &resp)
	return resp, err
}

func (c *Client) CreateTunnel(ctx context.Context, req httpapi.TunnelRequest) (httpapi.Result, error) {
	var resp httpapi.Result
	err := c.call(ctx, http.MethodPost, "/overlay/tunnels", req, &resp)
	return resp, err
}

func (c *Client) DeleteTunnel(ctx context.Context, req httpapi.TunnelRequest) (httpapi.Result, error) {
	var resp httpapi.Result
	err := c.call(ctx, http.MethodDelete, "/overlay/tunnels", req, &resp)
	return resp, err
}

func (c *Client) AttachExternal(ctx context.Context, iface string, vlanTag int) (httpapi.Result, error) {
	var resp httpapi.Result
	err := c.call(ctx, http.MethodPost, "/overlay/external/attach", httpapi.ExternalAttachRequest{Interface: iface, VLANTag: vlanTag}, &resp)
	return resp, err
}

func (c *Client) DetachExternal(ctx context.Context, iface string) (httpapi.Result, error) {
	var resp httpapi.Result
	err := c.call(ctx, http.MethodPost, "/overlay/external/detach", httpapi.ExternalDetachRequest{Interface: iface}, &resp)
	return resp, err
}

func (c *Client) ReconcilePorts(ctx context.Context, req httpapi.ReconcilePortsRequest) (httpapi.ReconcilePortsResponse, error) {
	var resp httpapi.ReconcilePortsResponse
	err := c.call(ctx, http.MethodPost, "/overlay/reconcile-ports", req, &resp)
	return resp, err
}

func (c *Client) Ping(ctx context.Context) error {
	var resp httpapi.Result
	return c.call(ctx, http.MethodGet, "/health", nil, &resp)
}

// call sends one HTTP request, retrying transient transport failures
// (connection refused, timeout) up to maxRetries times with linear
// backoff. A decoded {success: false} body is returned as an
// apierr.KindAgentUnavailable-tagged error only when the transport layer
// itself failed; an application-level failure is left in the response
// for the caller to inspect via its own Success/Error fields, matching
// spec section 4.1's envelope contract.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authSecret != "" {
			req.Header.Set("Authorization", "Bearer "+c.authSecret)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("path", path).Warn("agent request failed, retrying")
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("agent returned %d", resp.StatusCode)
			continue
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode agent response: %w", err)
		}
		return nil
	}
	return apierr.New(apierr.KindAgentUnavailable, lastErr.Error())
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package pipedream implements mail.Provider over the Pipedream Connect
// OAuth proxy. The proxy forwards requests to the Gmail API using the
// tenant's stored credentials, so this client never touches OAuth tokens
// itself.
package pipedream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/mail"
)

const gmailAPIBase = "https://gmail.googleapis.com/gmail/v1/users/me"

// Config holds the proxy connection settings.
type Config struct {
	// BaseURL is the Connect API endpoint.
	// Example: "https://api.pipedream.com"
	BaseURL string

	// ProjectId is the Connect project the accounts live in.
	ProjectId string

	// Environment selects the project environment, e.g. "development" or
	// "production".
	Environment string

	// AccessToken authenticates this backend against the Connect API.
	AccessToken string

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("pipedream config: BaseURL is required")
	}
	if c.ProjectId == "" {
		return errors.New("pipedream config: ProjectId is required")
	}
	if c.AccessToken == "" {
		return errors.New("pipedream config: AccessToken is required")
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	return nil
}

// Client implements mail.Provider over the Connect proxy.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a proxy-backed mail provider.
//
// Returns mail.Provider (not *Client) to enforce abstraction and prevent
// coupling to proxy-specific details.
func NewClient(config *Config) (mail.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		config: config,
		http:   httpClient,
		logger: slog.Default().With("component", "pipedream-client"),
	}, nil
}

// listResponse mirrors the Gmail messages.list payload.
type listResponse struct {
	Messages []struct {
		Id string `json:"id"`
	} `json:"messages"`
	NextPageToken      string `json:"nextPageToken"`
	ResultSizeEstimate int    `json:"resultSizeEstimate"`
}

// messageResponse mirrors the Gmail messages.get payload.
type messageResponse struct {
	Id           string `json:"id"`
	ThreadId     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		MimeType string `json:"mimeType"`
		Headers  []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		Body struct {
			Data string `json:"data"`
		} `json:"body"`
		Parts []struct {
			MimeType string `json:"mimeType"`
			Body     struct {
				Data string `json:"data"`
			} `json:"body"`
		} `json:"parts"`
	} `json:"payload"`
}

// List returns one page of message ids matching the query.
func (c *Client) List(ctx context.Context, cred mail.Credential, q mail.Query) (*mail.Page, error) {
	maxResults := q.MaxResults
	if maxResults < 1 {
		maxResults = 100
	}

	target := fmt.Sprintf("%s/messages?maxResults=%d&q=after:%d",
		gmailAPIBase, maxResults, q.After.Unix())
	if q.PageToken != "" {
		target += "&pageToken=" + url.QueryEscape(q.PageToken)
	}

	var resp listResponse
	if err := c.proxyGet(ctx, cred, target, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &mail.Page{
		NextPageToken: resp.NextPageToken,
		SizeEstimate:  resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		page.Ids = append(page.Ids, m.Id)
	}
	return page, nil
}

// Get fetches the full message with the given id.
func (c *Client) Get(ctx context.Context, cred mail.Credential, id string) (*core.Message, error) {
	target := fmt.Sprintf("%s/messages/%s", gmailAPIBase, url.PathEscape(id))

	var resp messageResponse
	if err := c.proxyGet(ctx, cred, target, &resp); err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	internalDate, err := strconv.ParseInt(resp.InternalDate, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s has internal date %q",
			core.ErrMalformedPayload, id, resp.InternalDate)
	}

	msg := &core.Message{
		Id:           resp.Id,
		ThreadId:     resp.ThreadId,
		InternalDate: internalDate,
	}
	for _, h := range resp.Payload.Headers {
		msg.Headers = append(msg.Headers, core.Header{Name: h.Name, Value: h.Value})
	}

	// Simple messages carry the body directly in the payload; multipart
	// messages carry it in parts.
	if resp.Payload.Body.Data != "" {
		msg.Parts = append(msg.Parts, core.BodyPart{
			MimeType: normalizeMimeType(resp.Payload.MimeType),
			Data:     resp.Payload.Body.Data,
		})
	}
	for _, p := range resp.Payload.Parts {
		if p.Body.Data == "" {
			continue
		}
		msg.Parts = append(msg.Parts, core.BodyPart{
			MimeType: p.MimeType,
			Data:     p.Body.Data,
		})
	}

	return msg, nil
}

// proxyGet issues a GET for targetURL through the Connect proxy and decodes
// the JSON response into out.
func (c *Client) proxyGet(ctx context.Context, cred mail.Credential, targetURL string, out any) error {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(targetURL))
	proxyURL := fmt.Sprintf("%s/v1/connect/%s/proxy/%s?external_user_id=%s&account_id=%s",
		c.config.BaseURL, c.config.ProjectId, encoded,
		url.QueryEscape(cred.ExternalUserId), url.QueryEscape(cred.AccountId))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return fmt.Errorf("build proxy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("X-PD-Environment", c.config.Environment)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("proxy request failed",
			"status", resp.StatusCode,
			"body", string(body))
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode proxy response: %v", core.ErrMalformedPayload, err)
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the domain error taxonomy.
// Throttling and server-side failures are transient; credential and request
// errors are permanent.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d", core.ErrRateLimited, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", core.ErrBadCredentials, status)
	default:
		return fmt.Errorf("%w: status %d", core.ErrMalformedPayload, status)
	}
}

func normalizeMimeType(mimeType string) string {
	if mimeType == "" {
		return "text/plain"
	}
	return mimeType
}

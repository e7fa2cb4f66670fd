package gitstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"recmirror/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Client commits structure documents into the versioned store through the
// contents API. One repository per group; one file per record.
type Client struct {
	baseURL string
	org     string
	http    *http.Client
	logger  *zerolog.Logger
}

func NewClient(cfg config.GitStoreConfig, logger *zerolog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		baseURL: cfg.BaseURL,
		org:     cfg.Org,
		http:    httpClient,
		logger:  logger,
	}
}

// EnsureRepo creates the repository if it does not exist yet.
func (c *Client) EnsureRepo(ctx context.Context, repoName string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, c.org, url.PathEscape(repoName))
	status, _, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("check repo %s: %w", repoName, err)
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("check repo %s: unexpected status %d", repoName, status)
	}

	payload := map[string]any{
		"name":      repoName,
		"private":   true,
		"auto_init": true,
	}
	endpoint = fmt.Sprintf("%s/orgs/%s/repos", c.baseURL, c.org)
	status, body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return fmt.Errorf("create repo %s: %w", repoName, err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create repo %s: status %d: %s", repoName, status, body)
	}

	c.logger.Info().Str("repo", repoName).Msg("created mirror repository")
	return nil
}

// WriteFile creates or updates a file. The contents API requires the current
// blob SHA on update, so the file is looked up first.
func (c *Client) WriteFile(ctx context.Context, repoName, path string, content []byte, message string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, c.org, url.PathEscape(repoName), escapePath(path))

	sha, err := c.currentSHA(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("look up %s in %s: %w", path, repoName, err)
	}

	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		payload["sha"] = sha
	}

	status, body, err := c.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return fmt.Errorf("write %s to %s: %w", path, repoName, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("write %s to %s: status %d: %s", path, repoName, status, body)
	}

	c.logger.Debug().
		Str("repo", repoName).
		Str("path", path).
		Bool("update", sha != "").
		Msg("committed mirror file")
	return nil
}

func (c *Client) currentSHA(ctx context.Context, endpoint string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", status)
	}

	var parsed struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", fmt.Errorf("decode contents response: %w", err)
	}
	return parsed.SHA, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (int, string, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, "", fmt.Errorf("encode payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(path string) string {
	var buf bytes.Buffer
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			buf.WriteString(url.PathEscape(path[start:i]))
			if i < len(path) {
				buf.WriteByte('/')
			}
			start = i + 1
		}
	}
	return buf.String()
}

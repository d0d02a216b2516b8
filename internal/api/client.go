package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "EDMANWEB_HTTP_TIMEOUT"
	apiTokenEnvKey     = "EDMANWEB_API_TOKEN"
)

// Client is a simple HTTP client for the edmanweb API.
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken: strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

// UploadAttachment sends content as a multipart upload and attaches it to
// the document.
func (c *Client) UploadAttachment(ctx context.Context, collection, id, filename string, content io.Reader, compress bool) (UploadResponse, error) {
	var resp UploadResponse

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if compress {
		if err := writer.WriteField("compress", "true"); err != nil {
			return resp, err
		}
	}
	part, err := writer.CreateFormFile("content", filename)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, err
	}
	if err := writer.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+attachmentsPath(collection, id), &body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuthHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) DeleteAttachments(ctx context.Context, collection, id string, blobIDs []string) (DeleteAttachmentsResponse, error) {
	var resp DeleteAttachmentsResponse
	err := c.do(ctx, http.MethodDelete, attachmentsPath(collection, id), nil, DeleteAttachmentsRequest{IDs: blobIDs}, &resp)
	return resp, err
}

func (c *Client) ListAttachments(ctx context.Context, collection, id string) ([]FileResponse, error) {
	var resp []FileResponse
	err := c.do(ctx, http.MethodGet, attachmentsPath(collection, id), nil, nil, &resp)
	return resp, err
}

// DownloadBlob streams decoded blob content to w and returns the filename
// the server reported.
func (c *Client) DownloadBlob(ctx context.Context, blobID string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/blobs/"+url.PathEscape(blobID), nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	filename := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return filename, nil
}

// GetDocuments fetches a document under a selection mode.
func (c *Client) GetDocuments(ctx context.Context, collection, id string, query url.Values) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, documentPath(collection, id), query, nil, &resp)
	return resp, err
}

func (c *Client) ImportDocuments(ctx context.Context, tree map[string]any) (ImportResponse, error) {
	var resp ImportResponse
	err := c.do(ctx, http.MethodPost, "/v1/documents/import", nil, tree, &resp)
	return resp, err
}

func (c *Client) Previews(ctx context.Context, collection, id string, query url.Values) (PreviewResponse, error) {
	var resp PreviewResponse
	err := c.do(ctx, http.MethodGet, documentPath(collection, id)+"/previews", query, nil, &resp)
	return resp, err
}

// BlobGC counts unreferenced blobs, or deletes them when apply is set.
func (c *Client) BlobGC(ctx context.Context, apply bool) (BlobGCResponse, error) {
	var resp BlobGCResponse
	endpoint := c.baseURL + "/v1/admin/gc"
	if apply {
		endpoint += "?apply=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return resp, err
	}
	if apply {
		req.Header.Set("X-Confirm", "true")
	}
	c.setAuthHeader(req)
	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func documentPath(collection, id string) string {
	return "/v1/collections/" + url.PathEscape(collection) + "/documents/" + url.PathEscape(id)
}

func attachmentsPath(collection, id string) string {
	return documentPath(collection, id) + "/attachments"
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}

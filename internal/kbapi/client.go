package kbapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kbsync/internal/model"
)

const defaultTimeout = 30 * time.Second

// Client talks to the document-management backend. The zero value is not
// usable; construct with NewClient. All methods honor ctx cancellation.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:     strings.TrimSpace(apiKey),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

// wireDocument tolerates the inconsistent field naming seen in list
// payloads; Normalize collapses it into the canonical shape.
type wireDocument struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	Name         string `json:"name"`
	FileSize     int64  `json:"fileSize"`
	Size         int64  `json:"size"`
	UploadedAt   string `json:"uploadedAt"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Error        string `json:"error"`
	Detail       string `json:"detail"`
}

func (w wireDocument) normalize() model.ServerDocument {
	doc := model.ServerDocument{
		ID:       strings.TrimSpace(w.ID),
		FileName: w.FileName,
		FileSize: w.FileSize,
		Status:   model.NormalizeServerStatus(w.Status),
	}
	if doc.FileName == "" {
		doc.FileName = w.Name
	}
	if doc.FileSize == 0 {
		doc.FileSize = w.Size
	}
	if ts := strings.TrimSpace(w.UploadedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			doc.UploadedAt = parsed
		}
	}
	// error detail shows up in several places depending on backend version
	for _, candidate := range []string{w.ErrorMessage, w.Error, w.Detail} {
		if msg := strings.TrimSpace(candidate); msg != "" {
			doc.ErrorMessage = msg
			break
		}
	}
	return doc
}

type askRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"documentIds,omitempty"`
}

type askResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		ID       string `json:"id"`
		FileName string `json:"fileName"`
		Snippet  string `json:"snippet"`
	} `json:"sources"`
}

// Upload streams one file as multipart form data and returns the
// server-assigned document id. onProgress, when non-nil, receives byte
// counts of the request body as it is consumed by the transport.
func (c *Client) Upload(ctx context.Context, name string, size int64, r io.Reader, onProgress model.ProgressFunc) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "upload file name is empty"}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build upload body", Cause: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to read upload input", Cause: err}
	}
	if err := writer.WriteField("sizeBytes", fmt.Sprintf("%d", size)); err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to set upload metadata", Cause: err}
	}
	if err := writer.Close(); err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to finalize upload body", Cause: err}
	}

	var reqBody io.Reader = bytes.NewReader(body.Bytes())
	if onProgress != nil {
		reqBody = &progressReader{r: reqBody, total: int64(body.Len()), onProgress: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/documents"), reqBody)
	if err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build upload request", Cause: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = int64(body.Len())
	c.authorize(req)

	respBody, _, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "failed to decode upload response", Cause: err}
	}
	id := strings.TrimSpace(parsed.ID)
	if id == "" {
		id = strings.TrimSpace(parsed.DocumentID)
	}
	if id == "" {
		return "", &model.ServiceError{Kind: model.KindPermanent, Message: "upload response had no document id"}
	}
	return id, nil
}

// List fetches the server's document inventory, normalized at the boundary.
func (c *Client) List(ctx context.Context) ([]model.ServerDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/documents"), nil)
	if err != nil {
		return nil, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build list request", Cause: err}
	}
	c.authorize(req)

	respBody, _, err := c.do(req, "list")
	if err != nil {
		return nil, err
	}

	var raw []wireDocument
	if err := json.Unmarshal(respBody, &raw); err != nil {
		// some backend versions wrap the array
		var wrapped struct {
			Documents []wireDocument `json:"documents"`
		}
		if err2 := json.Unmarshal(respBody, &wrapped); err2 != nil {
			return nil, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to decode document list", Cause: err}
		}
		raw = wrapped.Documents
	}

	docs := make([]model.ServerDocument, 0, len(raw))
	for _, w := range raw {
		doc := w.normalize()
		if doc.ID == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// RetryIndexing asks the backend to restart indexing for an existing
// document. It does not re-upload content.
func (c *Client) RetryIndexing(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/documents/"+url.PathEscape(id)+"/retry"), nil)
	if err != nil {
		return &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build retry request", Cause: err}
	}
	c.authorize(req)
	_, _, err = c.do(req, "retry")
	return err
}

// Delete removes a document server-side; allowed on any status.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/v1/documents/"+url.PathEscape(id)), nil)
	if err != nil {
		return &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build delete request", Cause: err}
	}
	c.authorize(req)
	_, _, err = c.do(req, "delete")
	return err
}

// Download returns the stored bytes for a document. Caller closes.
func (c *Client) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/documents/"+url.PathEscape(id)+"/content"), nil)
	if err != nil {
		return nil, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build download request", Cause: err}
	}
	c.authorize(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, transportError("download", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(msg)), "download")
	}
	return resp.Body, nil
}

// Ask runs a question-answering request scoped to documentIDs.
func (c *Client) Ask(ctx context.Context, query string, documentIDs []string) (model.AskResult, error) {
	payload, err := json.Marshal(askRequest{Query: query, DocumentIDs: documentIDs})
	if err != nil {
		return model.AskResult{}, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to marshal ask request", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/ask"), bytes.NewReader(payload))
	if err != nil {
		return model.AskResult{}, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to build ask request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	respBody, _, err := c.do(req, "ask")
	if err != nil {
		return model.AskResult{}, err
	}

	var parsed askResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return model.AskResult{}, &model.ServiceError{Kind: model.KindPermanent, Message: "failed to decode ask response", Cause: err}
	}
	result := model.AskResult{
		Question: query,
		Answer:   parsed.Answer,
		ScopeIDs: documentIDs,
	}
	for _, s := range parsed.Sources {
		result.Sources = append(result.Sources, model.AskSource{
			DocumentID: s.ID,
			FileName:   s.FileName,
			Snippet:    s.Snippet,
		})
	}
	return result, nil
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	return base + path
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// do executes the request and returns the body for 2xx responses; any other
// outcome is mapped into a ServiceError.
func (c *Client) do(req *http.Request, op string) ([]byte, int, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, transportError(op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, statusError(resp.StatusCode, strings.TrimSpace(string(body)), op)
	}
	return body, resp.StatusCode, nil
}

func transportError(op string, err error) error {
	return &model.ServiceError{
		Kind:    model.Classify(err),
		Message: op + " request failed: " + err.Error(),
		Cause:   err,
	}
}

func statusError(statusCode int, message, op string) error {
	if message == "" {
		message = fmt.Sprintf("%s returned status %d", op, statusCode)
	} else if parsed := errorFromBody(message); parsed != "" {
		message = parsed
	}
	return &model.ServiceError{
		Kind:       model.KindForStatus(statusCode),
		Message:    message,
		StatusCode: statusCode,
	}
}

// errorFromBody pulls a human message out of a JSON error payload when the
// backend sends one; other bodies are used verbatim.
func errorFromBody(body string) string {
	var parsed struct {
		ErrorMessage string `json:"errorMessage"`
		Error        string `json:"error"`
		Message      string `json:"message"`
		Detail       string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return ""
	}
	for _, candidate := range []string{parsed.ErrorMessage, parsed.Error, parsed.Message, parsed.Detail} {
		if msg := strings.TrimSpace(candidate); msg != "" {
			return msg
		}
	}
	return ""
}

// progressReader reports consumed bytes of the request body so the
// submitter can surface transfer progress.
type progressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	onProgress model.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.onProgress(p.sent, p.total)
	}
	return n, err
}

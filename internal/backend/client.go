package backend

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

	"sponsorlink/internal/message"
)

const defaultTimeout = 30 * time.Second

// Client talks to the marketplace REST backend: login, file upload and the
// attachment query that feeds the signing workflow.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
}

// NewClient builds a REST client. token resolves the current bearer token
// per request and may be nil for unauthenticated use (login only).
func NewClient(baseURL string, hc *http.Client, token func() string) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, token: token}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend: login failed: %s", resp.Status)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("backend: login response carried no token")
	}
	return out.Token, nil
}

// UploadResult is the backend's reference to a stored file, ready to be
// attached to a chat message.
type UploadResult struct {
	MediaURL string `json:"mediaUrl"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// UploadFile publishes a binary (e.g. a signed artifact) and returns its
// media reference.
func (c *Client) UploadFile(ctx context.Context, name, mime string, src io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return UploadResult{}, err
	}
	if mime != "" {
		_ = writer.WriteField("mime", mime)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return UploadResult{}, fmt.Errorf("backend: upload failed: %s", resp.Status)
	}
	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

// ChatAttachments lists the media messages exchanged with a peer; the
// caller filters them down to signable documents.
func (c *Client) ChatAttachments(ctx context.Context, peerID string) ([]message.Attachment, error) {
	endpoint := fmt.Sprintf("%s/attachments?peer=%s", c.baseURL, url.QueryEscape(peerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: attachment query failed: %s", resp.Status)
	}
	var out []message.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// SignableAttachments narrows the attachment history to documents eligible
// for signing.
func (c *Client) SignableAttachments(ctx context.Context, peerID string) ([]message.Attachment, error) {
	all, err := c.ChatAttachments(ctx, peerID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, att := range all {
		if att.Signable() {
			out = append(out, att)
		}
	}
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token == nil {
		return
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

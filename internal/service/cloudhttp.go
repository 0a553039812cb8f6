package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
)

// envelope is the uniform response shape of the arsenal cloud storage
// API; non-success answers are failures subject to the sync retry policy
type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Properties map[string]string `json:"properties"`
}

// HTTPProvider talks to an arsenal-compatible cloud storage endpoint.
// Every call carries the configured capability token.
type HTTPProvider struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewHTTPProvider(endpoint, token string) *HTTPProvider {
	return &HTTPProvider{
		Endpoint: endpoint,
		Token:    token,
		Client:   http.DefaultClient,
	}
}

func (p *HTTPProvider) Exists(ctx context.Context, name string) (bool, error) {
	env, err := p.call(ctx, http.MethodGet, "/files/exists?name="+url.QueryEscape(name), "", nil)
	if err != nil {
		return false, err
	}
	return env.Properties["exists"] == "true", nil
}

func (p *HTTPProvider) Upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for upload, %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if err := mw.WriteField("name", name); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to buffer upload body, %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	_, err = p.call(ctx, http.MethodPost, "/files", mw.FormDataContentType(), body)
	return err
}

func (p *HTTPProvider) URL(name string) string {
	return p.Endpoint + "/files/download?name=" + url.QueryEscape(name)
}

func (p *HTTPProvider) call(ctx context.Context, method, route, contentType string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.Endpoint+route, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "Cloud storage call failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "Failed to read cloud storage response", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "Malformed cloud storage response", err)
	}
	if !env.Success {
		return nil, apperr.Newf(apperr.KindExternalFailure, "Cloud storage refused the call: %s", env.Message)
	}

	return &env, nil
}

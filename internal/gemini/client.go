// Package gemini adapts the Gemini API to the evidence upload, activation
// and generation interfaces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"secq/internal/evidence"
	"secq/internal/logging"
	"secq/internal/retry"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-pro"

// Client implements evidence.Uploader, evidence.StatusChecker and
// evaluate.Generator.
type Client struct {
	client *genai.Client
	model  string

	// file name -> URI, learned from uploads and status checks
	uris sync.Map
}

// New creates a client for the Gemini developer API.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

func (c *Client) UploadArtifact(ctx context.Context, path, mimeType, displayName string) (evidence.Handle, error) {
	f, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return evidence.Handle{}, fmt.Errorf("upload %s: %w", displayName, Classify(err))
	}
	c.remember(f)
	logging.UploadDebug("uploaded %s as %s (%s)", displayName, f.Name, f.State)
	return evidence.Handle{
		ID:          f.Name,
		URI:         f.URI,
		MIMEType:    mimeType,
		DisplayName: displayName,
	}, nil
}

func (c *Client) ArtifactStatus(ctx context.Context, id string) (evidence.Status, error) {
	f, err := c.client.Files.Get(ctx, id, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
			return evidence.StatusUnknown, fmt.Errorf("%s: %w", id, evidence.ErrNotFound)
		}
		return evidence.StatusUnknown, Classify(err)
	}
	c.remember(f)
	st := statusOf(f.State)
	if st == evidence.StatusFailed && f.Error != nil {
		logging.ActivationWarn("%s failed processing: %s", id, f.Error.Message)
	}
	return st, nil
}

// Generate sends the attachments followed by prompt and returns the text
// of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string, attachments []evidence.Handle) (string, error) {
	parts := make([]*genai.Part, 0, len(attachments)+1)
	for _, h := range attachments {
		uri, err := c.uriFor(ctx, h)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromURI(uri, h.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", Classify(err)
	}
	return resp.Text(), nil
}

func (c *Client) remember(f *genai.File) {
	if f != nil && f.URI != "" {
		c.uris.Store(f.Name, f.URI)
	}
}

func (c *Client) uriFor(ctx context.Context, h evidence.Handle) (string, error) {
	if h.URI != "" {
		return h.URI, nil
	}
	if v, ok := c.uris.Load(h.ID); ok {
		return v.(string), nil
	}
	f, err := c.client.Files.Get(ctx, h.ID, nil)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", h.ID, Classify(err))
	}
	c.remember(f)
	return f.URI, nil
}

func statusOf(s genai.FileState) evidence.Status {
	switch s {
	case genai.FileStateActive:
		return evidence.StatusActive
	case genai.FileStateProcessing:
		return evidence.StatusProcessing
	case genai.FileStateFailed:
		return evidence.StatusFailed
	default:
		return evidence.StatusUnknown
	}
}

var transientCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Classify marks rate-limit, availability and network errors as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return retry.Transient(err)
		}
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return retry.Transient(err)
	}
	return err
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// ErrAlreadyExists matches genai API errors for resources that already exist.
var ErrAlreadyExists = errors.New("gemini: already exists")

type Options struct {
	APIKey string
	// BaseURL overrides the API host; empty uses the SDK default.
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client wraps the genai SDK for text generation and File Search stores.
// One Client is built at startup and shared; it holds no per-request state.
type Client struct {
	sdk   *genai.Client
	model string
}

func NewClient(ctx context.Context, o Options) (*Client, error) {
	httpClient := o.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from ctx; this only guards against a stuck connection.
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      o.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	model := o.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{sdk: sdk, model: model}, nil
}

func (c *Client) Model() string { return c.model }

// classify tags genai conflict errors with ErrAlreadyExists.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isAlreadyExists(apiErr) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	return err
}

func isAlreadyExists(e genai.APIError) bool {
	return e.Code == http.StatusConflict || e.Status == "ALREADY_EXISTS"
}

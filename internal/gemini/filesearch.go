package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Store is a File Search store. Name has the form "fileSearchStores/<id>".
type Store struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Operation is a long-running indexing operation.
type Operation struct {
	Name     string           `json:"name"`
	Done     bool             `json:"done"`
	Error    *OperationError  `json:"error,omitempty"`
	Response *OperationResult `json:"response,omitempty"`
}

type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type OperationResult struct {
	Parent       string `json:"parent"`
	DocumentName string `json:"documentName"`
}

// FileID is the indexed document's resource name, or "" if not reported.
func (o Operation) FileID() string {
	if o.Response == nil {
		return ""
	}
	return o.Response.DocumentName
}

// EnsureStore returns the store named displayName, creating it when none
// exists. A create that loses a race resolves to the store that won.
func (c *Client) EnsureStore(ctx context.Context, displayName string) (Store, error) {
	if s, ok, err := c.findStore(ctx, displayName); err != nil || ok {
		return s, err
	}
	created, err := c.sdk.FileSearchStores.Create(ctx, &genai.CreateFileSearchStoreConfig{DisplayName: displayName})
	if err == nil {
		return Store{Name: created.Name, DisplayName: created.DisplayName}, nil
	}
	err = classify(err)
	if !errors.Is(err, ErrAlreadyExists) {
		return Store{}, fmt.Errorf("gemini: create store: %w", err)
	}
	s, ok, findErr := c.findStore(ctx, displayName)
	if findErr != nil {
		return Store{}, findErr
	}
	if !ok {
		return Store{}, fmt.Errorf("gemini: create store: %w", err)
	}
	return s, nil
}

// findStore picks the oldest store with displayName.
func (c *Client) findStore(ctx context.Context, displayName string) (Store, bool, error) {
	var found *genai.FileSearchStore
	for s, err := range c.sdk.FileSearchStores.All(ctx) {
		if err != nil {
			return Store{}, false, fmt.Errorf("gemini: list stores: %w", err)
		}
		if s.DisplayName != displayName {
			continue
		}
		if found == nil || s.CreateTime.Before(found.CreateTime) {
			found = s
		}
	}
	if found == nil {
		return Store{}, false, nil
	}
	return Store{Name: found.Name, DisplayName: found.DisplayName}, true, nil
}

// UploadInput is one document to index.
type UploadInput struct {
	FileName string
	MIMEType string
	Data     []byte
}

// UploadFile submits a document to a store and returns the indexing operation.
func (c *Client) UploadFile(ctx context.Context, storeName string, in UploadInput) (Operation, error) {
	mimeType := in.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	op, err := c.sdk.FileSearchStores.UploadToFileSearchStore(ctx, bytes.NewReader(in.Data), storeName, &genai.UploadToFileSearchStoreConfig{
		MIMEType:    mimeType,
		DisplayName: in.FileName,
	})
	if err != nil {
		return Operation{}, fmt.Errorf("gemini: upload: %w", err)
	}
	return fromSDK(op), nil
}

// GetOperation fetches the current state of an upload operation by name.
func (c *Client) GetOperation(ctx context.Context, name string) (Operation, error) {
	op, err := c.sdk.Operations.GetUploadToFileSearchStoreOperation(ctx, &genai.UploadToFileSearchStoreOperation{Name: name}, nil)
	if err != nil {
		return Operation{}, fmt.Errorf("gemini: get operation: %w", err)
	}
	return fromSDK(op), nil
}

func fromSDK(op *genai.UploadToFileSearchStoreOperation) Operation {
	out := Operation{Name: op.Name, Done: op.Done}
	if op.Error != nil {
		oe := &OperationError{}
		if code, ok := op.Error["code"].(float64); ok {
			oe.Code = int(code)
		}
		oe.Message, _ = op.Error["message"].(string)
		if oe.Message == "" {
			oe.Message = fmt.Sprintf("indexing failed: %v", op.Error)
		}
		out.Error = oe
	}
	if op.Response != nil {
		out.Response = &OperationResult{Parent: op.Response.Parent, DocumentName: op.Response.DocumentName}
	}
	return out
}

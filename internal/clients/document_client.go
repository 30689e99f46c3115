// internal/clients/document_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"memberportal/internal/application"
)

// UploadRequest describes a file the document service should store for an application.
type UploadRequest struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mime_type"`
}

type uploadResponse struct {
	Reference  string    `json:"reference"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DocumentClient registers uploads with the document storage service.
type DocumentClient struct {
	baseURL string
	http    *http.Client
}

func NewDocumentClient(baseURL string, httpClient *http.Client) *DocumentClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DocumentClient{baseURL: baseURL, http: httpClient}
}

// Upload is a write and is never retried here.
func (c *DocumentClient) Upload(ctx context.Context, upload UploadRequest) (application.Document, error) {
	body, err := json.Marshal(upload)
	if err != nil {
		return application.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/documents", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return application.Document{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return application.Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return application.Document{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return application.Document{}, err
	}
	if out.Reference == "" {
		return application.Document{}, fmt.Errorf("document service returned no reference")
	}

	return application.Document{
		Reference:  out.Reference,
		Name:       out.Name,
		Size:       out.Size,
		MimeType:   out.MimeType,
		UploadedAt: out.UploadedAt,
	}, nil
}

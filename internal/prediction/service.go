package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lewtec/anotador/internal/domain"
)

// Request asks for the predictions of a media item, optionally scoped to
// the region of interest of a task chain input
type Request struct {
	Media  domain.MediaIdentifier `json:"media"`
	TaskID string                 `json:"taskId,omitempty"`
	ROI    *domain.Shape          `json:"roi,omitempty"`
}

// Result is what the inference service returns
type Result struct {
	Annotations []domain.Annotation  `json:"annotations"`
	Maps        []domain.Explanation `json:"maps"`
}

// Service is the inference service collaborator
type Service interface {
	GetPredictions(ctx context.Context, req Request) (*Result, error)
}

// ServiceFunc adapts a function to Service
type ServiceFunc func(ctx context.Context, req Request) (*Result, error)

func (f ServiceFunc) GetPredictions(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// HTTPService talks JSON to an inference endpoint at BaseURL/predict
type HTTPService struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPService creates a client with a request timeout
func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	return &HTTPService{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPService) GetPredictions(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("while encoding prediction request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("while building prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("while requesting predictions for %s: %w", req.Media.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("while requesting predictions for %s: unexpected status %d: %s", req.Media.Key(), resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("while decoding predictions for %s: %w", req.Media.Key(), err)
	}
	return &result, nil
}

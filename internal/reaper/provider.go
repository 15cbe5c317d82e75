package reaper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Provider is the external room/SFU collaborator. Deletion there is best
// effort; the database soft-delete is authoritative either way.
type Provider interface {
	DeleteRoom(ctx context.Context, roomName string) error
}

// HTTPProvider deletes rooms through the provider's REST management API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider client with a bounded request timeout,
// so a hung provider cannot stall a sweep indefinitely.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// DeleteRoom issues the delete call. A 404 counts as success: the room is
// already gone on the provider side.
func (p *HTTPProvider) DeleteRoom(ctx context.Context, roomName string) error {
	endpoint := fmt.Sprintf("%s/rooms/%s", p.baseURL, url.PathEscape(roomName))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("room provider delete failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("room provider returned status %d", resp.StatusCode)
}

// NoopProvider is used when no external provider is configured.
type NoopProvider struct{}

func (NoopProvider) DeleteRoom(ctx context.Context, roomName string) error {
	return nil
}

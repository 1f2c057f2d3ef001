package sending

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/httpretry"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// GatewayDeliverer posts sms or push messages to an HTTP gateway.
type GatewayDeliverer struct {
	url    string
	apiKey string
	client *http.Client
}

// NewGatewayDeliverer creates a deliverer for one gateway endpoint.
func NewGatewayDeliverer(url string, cfg config.GatewayConfig) *GatewayDeliverer {
	return &GatewayDeliverer{
		url:    url,
		apiKey: cfg.APIKey,
		client: httpretry.NewClient(cfg.Timeout(), cfg.MaxRetries),
	}
}

type gatewayRequest struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Deliver implements Deliverer.
func (g *GatewayDeliverer) Deliver(ctx context.Context, msg *domain.Message) (*domain.DeliveryResult, error) {
	body, err := json.Marshal(gatewayRequest{To: msg.Address, Body: msg.Body, Reference: msg.TrackingToken})
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", msg.Channel, err)
	}
	defer resp.Body.Close()

	var out gatewayResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		reason := out.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway status %d", resp.StatusCode)
		}
		logger.Warn("gateway rejected message", "lead_id", msg.LeadID, "channel", string(msg.Channel),
			"status", resp.StatusCode)
		return &domain.DeliveryResult{Error: reason}, nil
	}
	return &domain.DeliveryResult{Delivered: true, ProviderID: out.MessageID}, nil
}

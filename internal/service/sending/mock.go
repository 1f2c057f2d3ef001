package sending

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// MockDeliverer simulates a provider with a fixed success rate.
type MockDeliverer struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
}

// NewMockDeliverer creates a mock that succeeds with probability
// successRate. A rate outside (0, 1] falls back to 0.9.
func NewMockDeliverer(successRate float64, src rand.Source) *MockDeliverer {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.9
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &MockDeliverer{rng: rand.New(src), successRate: successRate}
}

// Deliver implements Deliverer.
func (m *MockDeliverer) Deliver(_ context.Context, msg *domain.Message) (*domain.DeliveryResult, error) {
	m.mu.Lock()
	roll := m.rng.Float64()
	m.mu.Unlock()

	if roll >= m.successRate {
		logger.Debug("mock delivery failed", "lead_id", msg.LeadID, "channel", string(msg.Channel))
		return &domain.DeliveryResult{Error: "simulated provider rejection"}, nil
	}
	return &domain.DeliveryResult{Delivered: true, ProviderID: "mock-" + uuid.New().String()}, nil
}

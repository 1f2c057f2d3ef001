package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/httpretry"
)

const (
	simSwapPath      = "/sim-swap/v0/retrieve-date"
	reachabilityPath = "/device-reachability-status/v1/retrieve"
)

// LiveSource queries CAMARA-style SIM swap and device reachability APIs.
// Access tokens come from an OAuth2 client-credentials grant and are cached
// by the oauth2 transport for their lifetime.
type LiveSource struct {
	baseURL string
	client  *http.Client
	numbers NumberLookup
	now     func() time.Time
}

// NewLiveSource builds the authenticated, retrying HTTP client once.
func NewLiveSource(cfg config.SignalsConfig, numbers NumberLookup) (*LiveSource, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("live signal source: base_url and token_url are required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("live signal source: client credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	base := httpretry.NewClient(cfg.Timeout(), cfg.MaxRetries)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout()

	return &LiveSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		numbers: numbers,
		now:     time.Now,
	}, nil
}

type simSwapRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type simSwapResponse struct {
	LatestSimChange *time.Time `json:"latestSimChange"`
	MonitoredPeriod int        `json:"monitoredPeriod"`
}

type reachabilityRequest struct {
	Device struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"device"`
}

type reachabilityResponse struct {
	LastStatusTime *time.Time `json:"lastStatusTime"`
	Reachable      *bool      `json:"reachable"`
	Connectivity   []string   `json:"connectivity"`
	// Older revisions answer with a single status string.
	ReachabilityStatus string `json:"reachabilityStatus"`
}

// SimSwapStatus returns the date of the latest SIM change, if any.
func (s *LiveSource) SimSwapStatus(ctx context.Context, line string) (domain.SimSwapStatus, error) {
	number, err := s.lookup(ctx, line)
	if err != nil {
		return domain.SimSwapStatus{}, err
	}

	var resp simSwapResponse
	if err := s.post(ctx, simSwapPath, simSwapRequest{PhoneNumber: number}, &resp); err != nil {
		return domain.SimSwapStatus{}, fmt.Errorf("sim swap: %w", err)
	}

	out := domain.SimSwapStatus{SwappedAt: resp.LatestSimChange, MonitoredPeriod: resp.MonitoredPeriod}
	// The API exposes only the latest change; one swap inside the trailing
	// 30 days is the most that can be inferred.
	if resp.LatestSimChange != nil && s.now().Sub(*resp.LatestSimChange) <= 30*24*time.Hour {
		out.SwapCount30d = 1
	}
	return out, nil
}

// Reachability returns the device's current network attachment.
func (s *LiveSource) Reachability(ctx context.Context, line string) (domain.ReachabilityStatus, error) {
	number, err := s.lookup(ctx, line)
	if err != nil {
		return domain.ReachabilityStatus{}, err
	}

	var req reachabilityRequest
	req.Device.PhoneNumber = number
	var resp reachabilityResponse
	if err := s.post(ctx, reachabilityPath, req, &resp); err != nil {
		return domain.ReachabilityStatus{}, fmt.Errorf("reachability: %w", err)
	}

	out := domain.ReachabilityStatus{
		Connectivity:   resp.Connectivity,
		LastStatusTime: resp.LastStatusTime,
	}
	switch {
	case resp.Reachable != nil:
		out.Reachable = *resp.Reachable
	case resp.ReachabilityStatus != "":
		out.Reachable = strings.HasPrefix(resp.ReachabilityStatus, "CONNECTED")
		if out.Reachable {
			out.Connectivity = []string{strings.TrimPrefix(resp.ReachabilityStatus, "CONNECTED_")}
		}
	}
	return out, nil
}

func (s *LiveSource) lookup(ctx context.Context, line string) (string, error) {
	if line == "" {
		return "", ErrEmptyLine
	}
	return s.numbers.PhoneNumber(ctx, line)
}

func (s *LiveSource) post(ctx context.Context, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

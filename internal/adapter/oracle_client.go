package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/types"
)

// OracleResponse is the body returned by the verification endpoint.
// Upstream has used three spellings for the outcome flag over time; the
// transaction won when any of them is true.
type OracleResponse struct {
	Won      *bool  `json:"won,omitempty"`
	IsWinner *bool  `json:"isWinner,omitempty"`
	Winner   *bool  `json:"winner,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome converts the response into a verification state
func (r OracleResponse) Outcome() (types.VerificationState, error) {
	present := false
	for _, flag := range []*bool{r.Won, r.IsWinner, r.Winner} {
		if flag == nil {
			continue
		}
		if *flag {
			return types.VerificationWon, nil
		}
		present = true
	}
	if !present {
		return "", fmt.Errorf("oracle response carries no outcome field")
	}
	return types.VerificationNoJackpot, nil
}

// OracleClient asks the verification endpoint whether a transaction hit the jackpot
type OracleClient struct {
	url        string
	httpClient *http.Client
	health     *HealthTracker
}

// NewOracleClient creates a client for the verification URL
func NewOracleClient(url string, timeout time.Duration) *OracleClient {
	return &OracleClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		health:     NewHealthTracker("oracle", url),
	}
}

// Check posts {transactionHash} and returns the decoded outcome. Every call
// reaches the oracle; a failing oracle is asked again on the next sweep.
func (c *OracleClient) Check(ctx context.Context, hash string) (types.VerificationState, error) {
	start := time.Now()
	state, err := c.check(ctx, hash)
	c.health.Observe(start, err)
	return state, err
}

func (c *OracleClient) check(ctx context.Context, hash string) (types.VerificationState, error) {
	payload, err := json.Marshal(map[string]string{"transactionHash": hash})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", apperrors.NewNetworkTimeoutError("oracle", err)
		}
		return "", apperrors.NewNetworkError("oracle", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.NewNetworkError("oracle", fmt.Errorf("failed to read response: %w", err))
	}

	var decoded OracleResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			msg = fmt.Sprintf("status %d: %s", resp.StatusCode, decoded.Error)
		}
		return "", apperrors.NewNetworkError("oracle", fmt.Errorf("%s", msg))
	}
	if decodeErr != nil {
		return "", apperrors.NewNetworkError("oracle", fmt.Errorf("failed to parse response: %w", decodeErr))
	}

	return decoded.Outcome()
}

// Health returns the oracle endpoint statistics
func (c *OracleClient) Health() *EndpointHealth {
	return c.health.GetHealth()
}

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/slot-automator/internal/errors"
	"github.com/slot-automator/internal/types"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRelay answers JSON-RPC calls with canned results per method
func fakeRelay(t *testing.T, results map[string]interface{}, rpcErrors map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if msg, ok := rpcErrors[req.Method]; ok {
			resp["error"] = map[string]interface{}{"code": -32000, "message": msg}
		} else if res, ok := results[req.Method]; ok {
			resp["result"] = res
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestRelayClientReads(t *testing.T) {
	srv := fakeRelay(t, map[string]interface{}{
		"eth_getBalance":          "0xde0b6b3a7640000",
		"eth_getTransactionCount": "0x7",
	}, nil)
	defer srv.Close()

	c, err := NewRelayClient(testContext(t), srv.URL, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	balance, err := c.BalanceAt(testContext(t), testAccount)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())

	nonce, err := c.PendingNonceAt(testContext(t), testAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)

	health := c.Health()
	assert.Equal(t, int64(2), health.SuccessfulReqs)
	assert.True(t, health.IsHealthy)
}

func TestRelayClientSendReturnsRelayHash(t *testing.T) {
	hash := "0xab" + strings.Repeat("0", 62)
	srv := fakeRelay(t, map[string]interface{}{"eth_sendRawTransaction": hash}, nil)
	defer srv.Close()

	c, err := NewRelayClient(testContext(t), srv.URL, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.SendRawTransaction(testContext(t), []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(hash).Hex(), got)
}

func TestRelayClientSubmissionError(t *testing.T) {
	srv := fakeRelay(t, nil, map[string]string{"eth_sendRawTransaction": "insufficient funds for gas * price + value"})
	defer srv.Close()

	c, err := NewRelayClient(testContext(t), srv.URL, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SendRawTransaction(testContext(t), []byte{0x01})
	require.Error(t, err)
	assert.True(t, apperrors.IsSubmission(err))
	assert.Contains(t, apperrors.Categorize(err).Message, "insufficient funds")
	assert.Equal(t, int64(1), c.Health().FailedReqs)
}

func TestRelayClientNetworkError(t *testing.T) {
	srv := fakeRelay(t, nil, nil)
	url := srv.URL
	srv.Close()

	c, err := NewRelayClient(testContext(t), url, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SendRawTransaction(testContext(t), []byte{0x01})
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
	assert.False(t, apperrors.IsSubmission(err))
}

func TestRelayClientReadRPCErrorIsNetwork(t *testing.T) {
	srv := fakeRelay(t, nil, map[string]string{"eth_getBalance": "upstream unavailable"})
	defer srv.Close()

	c, err := NewRelayClient(testContext(t), srv.URL, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.BalanceAt(testContext(t), testAccount)
	assert.True(t, apperrors.IsNetwork(err))
}

func TestNewRelayClientRequiresURL(t *testing.T) {
	_, err := NewRelayClient(testContext(t), "", time.Second, nil)
	assert.Error(t, err)
}

func oracleServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xfeed", req["transactionHash"])
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestOracleClientOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    types.VerificationState
		wantErr func(error) bool
	}{
		{name: "won", status: 200, body: `{"won":true}`, want: types.VerificationWon},
		{name: "isWinner false", status: 200, body: `{"isWinner":false}`, want: types.VerificationNoJackpot},
		{name: "winner true", status: 200, body: `{"winner":true,"extra":1}`, want: types.VerificationWon},
		{name: "any true flag wins", status: 200, body: `{"won":false,"winner":true}`, want: types.VerificationWon},
		{name: "mixed flags", status: 200, body: `{"won":false,"isWinner":true}`, want: types.VerificationWon},
		{name: "all flags false", status: 200, body: `{"won":false,"isWinner":false,"winner":false}`, want: types.VerificationNoJackpot},
		{name: "no outcome field", status: 200, body: `{"result":"ok"}`, wantErr: func(err error) bool { return err != nil }},
		{name: "upstream failure", status: 500, body: `{"error":"Failed to calculate hash"}`, wantErr: apperrors.IsNetwork},
		{name: "bad request", status: 400, body: `{"error":"transactionHash is required"}`, wantErr: apperrors.IsNetwork},
		{name: "not json", status: 200, body: `<html>`, wantErr: apperrors.IsNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := oracleServer(t, tt.status, tt.body)
			defer srv.Close()

			c := NewOracleClient(srv.URL, time.Second)
			got, err := c.Check(testContext(t), "0xfeed")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error kind: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOracleClientErrorCarriesUpstreamMessage(t *testing.T) {
	srv := oracleServer(t, 500, `{"error":"Failed to calculate hash"}`)
	defer srv.Close()

	_, err := NewOracleClient(srv.URL, time.Second).Check(testContext(t), "0xfeed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to calculate hash")
}

func TestOracleClientAsksOnEveryCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOracleClient(srv.URL, time.Second)
	for i := 0; i < 10; i++ {
		_, err := c.Check(testContext(t), "0xfeed")
		require.True(t, apperrors.IsNetwork(err))
	}
	assert.Equal(t, int32(10), calls.Load())
	assert.Equal(t, 10, c.Health().ConsecutiveFails)
}

func TestRelayClientBalanceBreaker(t *testing.T) {
	srv := fakeRelay(t, map[string]interface{}{"eth_getTransactionCount": "0x3"},
		map[string]string{"eth_getBalance": "upstream unavailable"})
	defer srv.Close()

	c, err := NewRelayClient(testContext(t), srv.URL, time.Second, nil)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		_, err := c.BalanceAt(testContext(t), testAccount)
		require.True(t, apperrors.IsNetwork(err))
	}
	_, err = c.BalanceAt(testContext(t), testAccount)
	require.Error(t, err)
	assert.Equal(t, "SERVICE_UNAVAILABLE", apperrors.Categorize(err).Code)
	assert.Equal(t, int64(5), c.Health().FailedReqs)

	// nonce reads are never refused
	nonce, err := c.PendingNonceAt(testContext(t), testAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)

	h := c.Health()
	require.NotNil(t, h.Breaker)
	assert.Equal(t, int64(1), h.Breaker.Rejected)
	assert.False(t, h.IsHealthy)
}

func TestHealthTracker(t *testing.T) {
	h := NewHealthTracker("relay", "http://relay")

	h.RecordSuccess(10 * time.Millisecond)
	assert.True(t, h.IsHealthy())

	for i := 0; i < 4; i++ {
		h.RecordFailure(errors.New("boom"))
	}
	assert.True(t, h.IsHealthy())
	h.RecordFailure(errors.New("boom again"))
	assert.False(t, h.IsHealthy())

	snap := h.GetHealth()
	assert.Equal(t, int64(6), snap.TotalRequests)
	assert.Equal(t, 5, snap.ConsecutiveFails)
	assert.Equal(t, "boom again", snap.LastError)
	assert.Equal(t, 10*time.Millisecond, snap.AverageLatency)

	h.Observe(time.Now(), nil)
	assert.True(t, h.IsHealthy())
}

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tokensniper/internal/domain"
)

// swapPayload is the wire shape of a submission request.
type swapPayload struct {
	Mint                string  `json:"mint"`
	Venue               string  `json:"venue"`
	Side                string  `json:"side"`
	Size                float64 `json:"size"`
	SlippageBps         int     `json:"slippage_bps"`
	PriorityFeeLamports uint64  `json:"priority_fee_lamports"`
	UseBundle           bool    `json:"use_bundle"`
}

// swapReply is the wire shape of a submission response. On failure Error
// carries one of the documented reject codes.
type swapReply struct {
	TxRef          string  `json:"tx_ref"`
	ConfirmedPrice float64 `json:"confirmed_price"`
	ConfirmedSize  float64 `json:"confirmed_size"`
	Error          string  `json:"error,omitempty"`
}

// HTTPSubmitter implements domain.SwapSubmitter against the external
// swap-submission service. Transaction construction, signing, and bundling
// all happen on the far side; this client only classifies outcomes.
type HTTPSubmitter struct {
	submitURL string
	client    *http.Client
}

// NewHTTPSubmitter creates an HTTPSubmitter. The HTTP client carries no
// timeout of its own; the executor bounds each attempt through the context.
func NewHTTPSubmitter(submitURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		submitURL: submitURL,
		client:    &http.Client{},
	}
}

// Submit posts one swap and waits for confirmation or a classified reject.
func (s *HTTPSubmitter) Submit(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	payload := swapPayload{
		Mint:                req.Mint,
		Venue:               string(req.Venue),
		Side:                string(req.Side),
		Size:                req.Size,
		SlippageBps:         req.Fees.SlippageBps,
		PriorityFeeLamports: req.Fees.PriorityFeeLamports,
		UseBundle:           req.Fees.UseBundle,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("submitter: marshal swap: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.submitURL, bytes.NewReader(body))
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("submitter: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		// Transport failures and deadline hits are indistinguishable from a
		// submission that never left; both classify as transient timeouts.
		return domain.SwapResult{}, &domain.ExecutionError{
			Kind:    domain.ExecErrorTimeout,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return domain.SwapResult{}, &domain.ExecutionError{
			Kind:    domain.ExecErrorTimeout,
			Message: fmt.Sprintf("read response: %v", err),
		}
	}

	var reply swapReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return domain.SwapResult{}, &domain.ExecutionError{
			Kind:    domain.ExecErrorRejected,
			Message: fmt.Sprintf("status %d: unparseable response", resp.StatusCode),
		}
	}

	if resp.StatusCode != http.StatusOK || reply.Error != "" {
		return domain.SwapResult{}, &domain.ExecutionError{
			Kind:    classifyReject(reply.Error),
			Message: reply.Error,
		}
	}

	return domain.SwapResult{
		TxRef:          reply.TxRef,
		ConfirmedPrice: reply.ConfirmedPrice,
		ConfirmedSize:  reply.ConfirmedSize,
	}, nil
}

// classifyReject maps submission service error codes to execution error
// kinds. Unknown codes are final rejects, not retried.
func classifyReject(code string) domain.ExecErrorKind {
	switch code {
	case "timeout":
		return domain.ExecErrorTimeout
	case "slippage_exceeded":
		return domain.ExecErrorSlippageExceeded
	case "insufficient_liquidity":
		return domain.ExecErrorInsufficientLiquidity
	default:
		return domain.ExecErrorRejected
	}
}

var _ domain.SwapSubmitter = (*HTTPSubmitter)(nil)

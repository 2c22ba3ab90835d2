package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/go-resty/resty/v2"
)

type gatewayResponse struct {
	Confirmed bool   `json:"confirmed"`
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

type depositBody struct {
	AgentID types.AgentID `json:"agent_id"`
	Wallet  string        `json:"wallet"`
	Amount  string        `json:"amount"`
}

type distributionBody struct {
	Winner        string   `json:"winner"`
	Finalists     []string `json:"finalists"`
	FinalistCount int      `json:"finalist_count"`
	WinnerBps     uint64   `json:"winner_bps"`
	FinalistBps   uint64   `json:"finalist_bps"`
	TreasuryBps   uint64   `json:"treasury_bps"`
	BurnBps       uint64   `json:"burn_bps"`
}

// GatewayClient talks to the service that signs and submits escrow contract
// transactions on our behalf.
type GatewayClient struct {
	client *resty.Client
}

func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &GatewayClient{
		client: client,
	}
}

func (c *GatewayClient) Deposit(ctx context.Context, req DepositRequest) (Receipt, error) {
	if req.Amount == nil {
		return Receipt{}, fmt.Errorf("%w: missing amount", ErrInvalidDeposit)
	}

	return c.post(ctx, req.TournamentID, "deposits", depositBody{
		AgentID: req.AgentID,
		Wallet:  req.Wallet.Hex(),
		Amount:  req.Amount.Dec(),
	})
}

func (c *GatewayClient) Distribute(ctx context.Context, id types.TournamentID, d Distribution) (Receipt, error) {
	finalists := make([]string, 0, len(d.Finalists))
	for _, f := range d.Finalists {
		finalists = append(finalists, f.Hex())
	}

	return c.post(ctx, id, "distribution", distributionBody{
		Winner:        d.Winner.Hex(),
		Finalists:     finalists,
		FinalistCount: len(finalists),
		WinnerBps:     d.WinnerBps,
		FinalistBps:   d.FinalistBps,
		TreasuryBps:   d.TreasuryBps,
		BurnBps:       d.BurnBps,
	})
}

func (c *GatewayClient) RefundAll(ctx context.Context, id types.TournamentID) (Receipt, error) {
	return c.post(ctx, id, "refund", struct{}{})
}

func (c *GatewayClient) post(ctx context.Context, id types.TournamentID, action string, body any) (Receipt, error) {
	var out gatewayResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatUint(uint64(id), 10)).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/v1/tournaments/{id}/" + action)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to call payment gateway %s: %w", action, err)
	}

	if resp.IsError() {
		return Receipt{}, fmt.Errorf("%w: %s %s: %s", ErrGatewayRejected, action, resp.Status(), out.Error)
	}

	if !out.Confirmed {
		return Receipt{}, fmt.Errorf("%w: %s for tournament %d", ErrNotConfirmed, action, id)
	}

	return Receipt{
		Reference:   out.Reference,
		ConfirmedAt: resp.ReceivedAt(),
	}, nil
}

package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	winner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	f1     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	f2     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	f3     = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	f4     = common.HexToAddress("0x00000000000000000000000000000000000000b4")
)

func TestNewDistributionShortfallToWinner(t *testing.T) {
	t.Parallel()

	full, err := payment.NewDistribution(winner, []common.Address{f1, f2, f3, f4})
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), full.WinnerBps)
	assert.Equal(t, uint64(1125), full.FinalistBps)

	two, err := payment.NewDistribution(winner, []common.Address{f1, f2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2500+2*1125), two.WinnerBps)

	none, err := payment.NewDistribution(winner, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500+4500), none.WinnerBps)

	_, err = payment.NewDistribution(winner, []common.Address{f1, f2, f3, f4, winner})
	require.ErrorIs(t, err, payment.ErrTooManyFinalists)
}

func TestAmountsRemainderToWinner(t *testing.T) {
	t.Parallel()

	d, err := payment.NewDistribution(winner, []common.Address{f1, f2, f3, f4})
	require.NoError(t, err)

	amounts := d.Amounts(uint256.NewInt(1000))

	assert.Equal(t, uint64(100), amounts.Treasury.Uint64())
	assert.Equal(t, uint64(100), amounts.Burn.Uint64())
	require.Len(t, amounts.Finalists, 4)

	for _, a := range amounts.Finalists {
		assert.Equal(t, uint64(112), a.Uint64())
	}

	assert.Equal(t, uint64(1000-200-4*112), amounts.Winner.Uint64())

	total := new(uint256.Int).Add(amounts.Winner, amounts.Treasury)
	total.Add(total, amounts.Burn)

	for _, a := range amounts.Finalists {
		total.Add(total, a)
	}

	assert.Equal(t, uint64(1000), total.Uint64())
}

func TestLedgerDistributeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := payment.NewLedger()
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	for range 10 {
		_, err := ledger.Deposit(ctx, payment.DepositRequest{TournamentID: 1, Wallet: wallet, Amount: uint256.NewInt(100)})
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(1000), ledger.Pool(1).Uint64())

	d, err := payment.NewDistribution(winner, []common.Address{f1})
	require.NoError(t, err)

	receipt, err := ledger.Distribute(ctx, 1, d)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.Reference)

	assert.Equal(t, uint64(112), ledger.Balance(f1).Uint64())
	assert.Equal(t, uint64(1000-200-112), ledger.Balance(winner).Uint64())
	assert.Equal(t, uint64(100), ledger.Burned().Uint64())
	assert.Equal(t, uint64(100), ledger.Treasury().Uint64())

	_, err = ledger.Distribute(ctx, 1, d)
	require.ErrorIs(t, err, payment.ErrAlreadySettled)

	_, err = ledger.RefundAll(ctx, 1)
	require.ErrorIs(t, err, payment.ErrAlreadySettled)

	_, err = ledger.Deposit(ctx, payment.DepositRequest{TournamentID: 1, Wallet: wallet, Amount: uint256.NewInt(1)})
	require.ErrorIs(t, err, payment.ErrAlreadySettled)
}

func TestLedgerRefundAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := payment.NewLedger()
	a := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000c2")

	_, err := ledger.Deposit(ctx, payment.DepositRequest{TournamentID: 2, Wallet: a, Amount: uint256.NewInt(40)})
	require.NoError(t, err)
	_, err = ledger.Deposit(ctx, payment.DepositRequest{TournamentID: 2, Wallet: b, Amount: uint256.NewInt(40)})
	require.NoError(t, err)

	_, err = ledger.RefundAll(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(40), ledger.Balance(a).Uint64())
	assert.Equal(t, uint64(40), ledger.Balance(b).Uint64())

	how, ok := ledger.Settlement(2)
	assert.True(t, ok)
	assert.Equal(t, "refunded", how)
}

func TestGatewayClient(t *testing.T) {
	t.Parallel()

	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/tournaments/7/distribution":
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"confirmed":true,"reference":"0xabc"}`))
		case "/v1/tournaments/7/refund":
			_, _ = w.Write([]byte(`{"confirmed":false}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unknown tournament"}`))
		}
	}))
	defer server.Close()

	client := payment.NewGatewayClient(server.URL, 5*time.Second)
	ctx := context.Background()

	d, err := payment.NewDistribution(winner, []common.Address{f1, f2})
	require.NoError(t, err)

	receipt, err := client.Distribute(ctx, 7, d)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.Reference)
	assert.Equal(t, winner.Hex(), got["winner"])
	assert.InDelta(t, 2, got["finalist_count"], 0)

	_, err = client.RefundAll(ctx, 7)
	require.ErrorIs(t, err, payment.ErrNotConfirmed)

	_, err = client.Deposit(ctx, payment.DepositRequest{TournamentID: 8, Wallet: winner, Amount: uint256.NewInt(5)})
	require.ErrorIs(t, err, payment.ErrGatewayRejected)
}

package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

func newTestDispute() *domain.Dispute {
	return domain.NewDispute(
		uuid.New(), "02trader", "03arbitrator",
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
}

func TestNewDisputeSnapshotsContract(t *testing.T) {
	dispute := newTestDispute()

	require.False(t, dispute.IsClosed)
	require.Equal(t, domain.ContractHash(dispute.ContractJson), dispute.ContractHash)
	require.NotZero(t, dispute.OpeningDate)
}

func TestAddChatMessageDeduplicates(t *testing.T) {
	dispute := newTestDispute()

	msg := domain.ChatMessage{
		Id:           "msg-1",
		TradeId:      dispute.TradeId,
		SenderPubKey: "02trader",
		Message:      "payment proof attached",
		Timestamp:    time.Now().Unix(),
	}
	require.True(t, dispute.AddChatMessage(msg))
	// Redelivered messages must not duplicate the history.
	require.False(t, dispute.AddChatMessage(msg))
	require.Len(t, dispute.ChatMessages, 1)

	other := msg
	other.Id = "msg-2"
	require.True(t, dispute.AddChatMessage(other))
	require.Len(t, dispute.ChatMessages, 2)
}

func TestCloseDispute(t *testing.T) {
	dispute := newTestDispute()

	result := &domain.DisputeResult{
		Winner:             domain.DisputeWinnerBuyer,
		BuyerPayoutAmount:  280000000000,
		SellerPayoutAmount: 7500000000,
	}
	require.NoError(t, dispute.Close(result))
	require.True(t, dispute.IsClosed)
	require.NotZero(t, dispute.Result.ClosingDate)

	// The first result is binding.
	err := dispute.Close(&domain.DisputeResult{Winner: domain.DisputeWinnerSeller})
	require.ErrorIs(t, err, domain.ErrDisputeAlreadyClosed)
	require.Equal(t, domain.DisputeWinnerBuyer, dispute.Result.Winner)
}

package application

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

// PeerInfo addresses a remote party.
type PeerInfo struct {
	NodeAddress string
	PubKey      string
}

// Identity is the local node's address and signing key.
type Identity struct {
	NodeAddress string
	PrivKey     *btcec.PrivateKey
}

// PubKeyHex returns the compressed hex encoding of the identity public key.
func (i Identity) PubKeyHex() string {
	return hex.EncodeToString(i.PrivKey.PubKey().SerializeCompressed())
}

// InitTradeParams are the terms of a take-offer request, provided by the
// taker when starting the protocol.
type InitTradeParams struct {
	OfferId          uuid.UUID
	Amount           uint64
	Price            decimal.Decimal
	TradeFee         uint64
	TxFee            uint64
	BuyerDepositPct  decimal.Decimal
	SellerDepositPct decimal.Decimal
	IsBuyerMaker     bool
	Maker            PeerInfo
	Arbitrator       PeerInfo
	PaymentAccountId string
	PayoutAddress    string
}

// NetworkParams are the configured network constants peer-supplied data is
// validated against.
type NetworkParams struct {
	Name string
	// AddressPrefix is the expected first character(s) of a valid payout
	// address on this network.
	AddressPrefix string
	// DonationAddress is the expected trade fee destination.
	DonationAddress string
}

// buildContract assembles the canonical contract from the trade terms and
// the per-role peer views. Maker and taker must end up with byte-identical
// serializations of this value.
func buildContract(t *domain.Trade) *domain.Contract {
	return &domain.Contract{
		TradeId:               t.Id.String(),
		Amount:                t.Amount,
		Price:                 t.Price.String(),
		TradeFee:              t.TradeFee,
		TxFee:                 t.TxFee,
		BuyerDepositPct:       t.BuyerDepositPct.String(),
		SellerDepositPct:      t.SellerDepositPct.String(),
		IsBuyerMaker:          t.IsBuyerMaker,
		MakerNodeAddress:      t.Maker().NodeAddress,
		TakerNodeAddress:      t.Taker().NodeAddress,
		ArbitratorNodeAddress: t.Arbitrator().NodeAddress,
		MakerPubKey:           t.Maker().PubKey,
		TakerPubKey:           t.Taker().PubKey,
		MakerPaymentAccountId: t.Maker().PaymentAccountId,
		TakerPaymentAccountId: t.Taker().PaymentAccountId,
		MakerPayoutAddress:    t.Maker().PayoutAddress,
		TakerPayoutAddress:    t.Taker().PayoutAddress,
	}
}

// mustDecimal parses a decimal produced by our own String() serialization.
// A malformed value yields zero, which the contract byte-equality check then
// rejects.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// depositAmount returns what the given side must move into the escrow: the
// seller deposits the trade amount on top of its security deposit, the buyer
// only its security deposit.
func depositAmount(t *domain.Trade, isBuyer bool) uint64 {
	amount := decimal.NewFromInt(int64(t.Amount))
	if isBuyer {
		return uint64(t.BuyerDepositPct.Mul(amount).Div(decimal.NewFromInt(100)).IntPart())
	}
	deposit := t.SellerDepositPct.Mul(amount).Div(decimal.NewFromInt(100))
	return t.Amount + uint64(deposit.IntPart())
}

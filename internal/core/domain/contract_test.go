package domain_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

func newTestContract() *domain.Contract {
	return &domain.Contract{
		TradeId:               "5440a53e-58d2-4e3d-8380-20410e687589",
		Amount:                250000000000,
		Price:                 "142.35",
		TradeFee:              500000000,
		TxFee:                 30000000,
		BuyerDepositPct:       "15",
		SellerDepositPct:      "15",
		IsBuyerMaker:          true,
		MakerNodeAddress:      "maker.onion:9999",
		TakerNodeAddress:      "taker.onion:9999",
		ArbitratorNodeAddress: "arb.onion:9999",
		MakerPubKey:           "02aabb",
		TakerPubKey:           "03ccdd",
		MakerPaymentAccountId: "sepa-1",
		TakerPaymentAccountId: "sepa-2",
		MakerPayoutAddress:    "4maker",
		TakerPayoutAddress:    "4taker",
	}
}

func TestContractCanonicalJsonIsDeterministic(t *testing.T) {
	first, err := newTestContract().CanonicalJson()
	require.NoError(t, err)
	second, err := newTestContract().CanonicalJson()
	require.NoError(t, err)
	require.Equal(t, first, second)

	parsed, err := domain.ContractFromJson(first)
	require.NoError(t, err)
	reserialized, err := parsed.CanonicalJson()
	require.NoError(t, err)
	require.Equal(t, first, reserialized)
}

func TestContractSignAndVerify(t *testing.T) {
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubKeyHex := hex.EncodeToString(privKey.PubKey().SerializeCompressed())

	contractJson, err := newTestContract().CanonicalJson()
	require.NoError(t, err)

	sig := domain.SignContractJson(privKey, contractJson)
	require.NoError(t, domain.VerifyContractSignature(pubKeyHex, contractJson, sig))
}

func TestContractSignatureRejectsSingleByteMutation(t *testing.T) {
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubKeyHex := hex.EncodeToString(privKey.PubKey().SerializeCompressed())

	contractJson, err := newTestContract().CanonicalJson()
	require.NoError(t, err)
	sig := domain.SignContractJson(privKey, contractJson)

	mutated := make([]byte, len(contractJson))
	copy(mutated, contractJson)
	mutated[len(mutated)/2] ^= 0x01

	err = domain.VerifyContractSignature(pubKeyHex, mutated, sig)
	require.ErrorIs(t, err, domain.ErrInvalidContractSignature)
}

func TestContractSignatureRejectsWrongKey(t *testing.T) {
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherPubHex := hex.EncodeToString(otherKey.PubKey().SerializeCompressed())

	contractJson, err := newTestContract().CanonicalJson()
	require.NoError(t, err)
	sig := domain.SignContractJson(privKey, contractJson)

	err = domain.VerifyContractSignature(otherPubHex, contractJson, sig)
	require.ErrorIs(t, err, domain.ErrInvalidContractSignature)
}

func TestVerifyContractMatch(t *testing.T) {
	local := newTestContract()
	receivedJson, err := newTestContract().CanonicalJson()
	require.NoError(t, err)

	require.NoError(t, domain.VerifyContractMatch(local, receivedJson))

	// Any divergence in the reconstructed terms is a hard failure.
	local.Amount++
	err = domain.VerifyContractMatch(local, receivedJson)
	require.ErrorIs(t, err, domain.ErrContractMismatch)
}

func TestContractHash(t *testing.T) {
	contractJson, err := newTestContract().CanonicalJson()
	require.NoError(t, err)

	hash := domain.ContractHash(contractJson)
	require.Len(t, hash, 32)
	require.Equal(t, hash, domain.ContractHash(contractJson))

	mutated := append([]byte{}, contractJson...)
	mutated[0] ^= 0x01
	require.NotEqual(t, hash, domain.ContractHash(mutated))
}

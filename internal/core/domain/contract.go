package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Contract is the canonical snapshot of the final trade terms. The maker
// constructs it and signs its JSON serialization; the taker independently
// reconstructs the same JSON from the data it received and verifies
// byte-for-byte equality before countersigning.
//
// The canonical serialization is json.Marshal of this struct: field order is
// fixed by declaration order, there is no indentation and no map in the
// structure, so two identical contracts always serialize to identical bytes.
type Contract struct {
	TradeId               string `json:"tradeId"`
	Amount                uint64 `json:"amount"`
	Price                 string `json:"price"`
	TradeFee              uint64 `json:"tradeFee"`
	TxFee                 uint64 `json:"txFee"`
	BuyerDepositPct       string `json:"buyerDepositPct"`
	SellerDepositPct      string `json:"sellerDepositPct"`
	IsBuyerMaker          bool   `json:"isBuyerMaker"`
	MakerNodeAddress      string `json:"makerNodeAddress"`
	TakerNodeAddress      string `json:"takerNodeAddress"`
	ArbitratorNodeAddress string `json:"arbitratorNodeAddress"`
	MakerPubKey           string `json:"makerPubKey"`
	TakerPubKey           string `json:"takerPubKey"`
	MakerPaymentAccountId string `json:"makerPaymentAccountId"`
	TakerPaymentAccountId string `json:"takerPaymentAccountId"`
	MakerPayoutAddress    string `json:"makerPayoutAddress"`
	TakerPayoutAddress    string `json:"takerPayoutAddress"`
}

// CanonicalJson returns the byte sequence both parties sign.
func (c *Contract) CanonicalJson() ([]byte, error) {
	return json.Marshal(c)
}

// ContractFromJson parses a canonical contract serialization.
func ContractFromJson(raw []byte) (*Contract, error) {
	c := &Contract{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ContractHash returns the SHA-256 digest of the canonical JSON.
func ContractHash(contractJson []byte) []byte {
	h := sha256.Sum256(contractJson)
	return h[:]
}

// SignContractJson signs the exact canonical JSON byte sequence.
func SignContractJson(priv *btcec.PrivateKey, contractJson []byte) []byte {
	digest := sha256.Sum256(contractJson)
	return ecdsa.Sign(priv, digest[:]).Serialize()
}

// VerifyContractSignature checks a contract signature against the exact JSON
// byte sequence it was produced over. Any single-byte mutation of the JSON
// makes the verification fail.
func VerifyContractSignature(pubKeyHex string, contractJson, sig []byte) error {
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return ErrInvalidPubKey
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return ErrInvalidPubKey
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return ErrInvalidContractSignature
	}
	digest := sha256.Sum256(contractJson)
	if !parsedSig.Verify(digest[:], pub) {
		return ErrInvalidContractSignature
	}
	return nil
}

// VerifyContractMatch checks that a locally reconstructed contract serializes
// to the exact byte sequence received from the counterparty. A mismatch is a
// hard failure, never silently reconciled.
func VerifyContractMatch(local *Contract, receivedJson []byte) error {
	localJson, err := local.CanonicalJson()
	if err != nil {
		return err
	}
	if !bytes.Equal(localJson, receivedJson) {
		return ErrContractMismatch
	}
	return nil
}

package application

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

// Dispute summaries travel as delimiter-framed text: the human-readable
// summary between the begin delimiter and the signature delimiter, the hex
// signature between the signature delimiter and the end delimiter. Verifiers
// re-split on the same delimiters, so the summary text itself must never
// contain them.
const (
	summaryBeginDelimiter = "-----BEGIN PEERTRADE DISPUTE SUMMARY-----"
	summarySigDelimiter   = "-----BEGIN SIGNATURE-----"
	summaryEndDelimiter   = "-----END PEERTRADE DISPUTE SUMMARY-----"
)

// formatSummaryText renders the arbitrator's decision into the signed text.
func formatSummaryText(d *domain.Dispute, result *domain.DisputeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dispute: %s\n", d.Id)
	fmt.Fprintf(&b, "Trade: %s\n", d.TradeId)
	fmt.Fprintf(&b, "Contract hash: %s\n", hex.EncodeToString(d.ContractHash))
	fmt.Fprintf(&b, "Winner: %s\n", result.Winner)
	fmt.Fprintf(&b, "Buyer payout: %d\n", result.BuyerPayoutAmount)
	fmt.Fprintf(&b, "Seller payout: %d\n", result.SellerPayoutAmount)
	if result.SummaryNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", result.SummaryNotes)
	}
	return b.String()
}

// signOverSummary produces the arbitrator's signature over the summary text.
func signOverSummary(privKey *btcec.PrivateKey, text string) []byte {
	return domain.SignContractJson(privKey, []byte(text))
}

// frameSummary assembles the delimiter-framed wire form of a signed summary.
func frameSummary(text string, sig []byte) string {
	var b strings.Builder
	b.WriteString(summaryBeginDelimiter)
	b.WriteString("\n")
	b.WriteString(text)
	b.WriteString(summarySigDelimiter)
	b.WriteString("\n")
	b.WriteString(hex.EncodeToString(sig))
	b.WriteString("\n")
	b.WriteString(summaryEndDelimiter)
	return b.String()
}

// signSummary frames and signs the summary text with the arbitrator key.
func signSummary(privKey *btcec.PrivateKey, text string) string {
	return frameSummary(text, signOverSummary(privKey, text))
}

// verifySummary splits a framed summary and verifies the signature against
// the arbitrator's public key, returning the signed text and the signature.
func verifySummary(arbitratorPubKey, framed string) (string, []byte, error) {
	begin := strings.Index(framed, summaryBeginDelimiter)
	sigAt := strings.Index(framed, summarySigDelimiter)
	end := strings.Index(framed, summaryEndDelimiter)
	if begin < 0 || sigAt < 0 || end < 0 || !(begin < sigAt && sigAt < end) {
		return "", nil, ErrMalformedSummary
	}

	text := framed[begin+len(summaryBeginDelimiter) : sigAt]
	text = strings.TrimPrefix(text, "\n")
	sigHex := strings.TrimSpace(framed[sigAt+len(summarySigDelimiter) : end])
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", nil, ErrMalformedSummary
	}

	if err := domain.VerifyContractSignature(arbitratorPubKey, []byte(text), sig); err != nil {
		return "", nil, ErrInvalidSummarySignature
	}
	return text, sig, nil
}

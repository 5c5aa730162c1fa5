package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

func TestSummarySignAndVerify(t *testing.T) {
	arbitrator := newTestIdentity("arb")
	dispute := domain.NewDispute(
		newTestUUID(), "02trader", arbitrator.PubKeyHex(),
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	result := &domain.DisputeResult{
		Winner:             domain.DisputeWinnerSeller,
		BuyerPayoutAmount:  0,
		SellerPayoutAmount: 300000000000,
		SummaryNotes:       "buyer never paid",
	}

	text := formatSummaryText(dispute, result)
	framed := signSummary(arbitrator.PrivKey, text)

	require.True(t, strings.HasPrefix(framed, summaryBeginDelimiter))
	require.True(t, strings.HasSuffix(framed, summaryEndDelimiter))

	verified, sig, err := verifySummary(arbitrator.PubKeyHex(), framed)
	require.NoError(t, err)
	require.Equal(t, text, verified)
	require.Equal(t, signOverSummary(arbitrator.PrivKey, text), sig)
	require.Contains(t, verified, "buyer never paid")
}

func TestSummaryVerifyRejectsTampering(t *testing.T) {
	arbitrator := newTestIdentity("arb")
	dispute := domain.NewDispute(
		newTestUUID(), "02trader", arbitrator.PubKeyHex(),
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	result := &domain.DisputeResult{
		Winner:            domain.DisputeWinnerBuyer,
		BuyerPayoutAmount: 100,
	}
	framed := signSummary(arbitrator.PrivKey, formatSummaryText(dispute, result))

	tampered := strings.Replace(framed, "Winner: buyer", "Winner: seller", 1)
	_, _, err := verifySummary(arbitrator.PubKeyHex(), tampered)
	require.ErrorIs(t, err, ErrInvalidSummarySignature)
}

func TestSummaryVerifyRejectsWrongKey(t *testing.T) {
	arbitrator := newTestIdentity("arb")
	impostor := newTestIdentity("impostor")
	dispute := domain.NewDispute(
		newTestUUID(), "02trader", arbitrator.PubKeyHex(),
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	framed := signSummary(
		impostor.PrivKey,
		formatSummaryText(dispute, &domain.DisputeResult{}),
	)

	_, _, err := verifySummary(arbitrator.PubKeyHex(), framed)
	require.ErrorIs(t, err, ErrInvalidSummarySignature)
}

func TestSummaryVerifyRejectsMalformedFraming(t *testing.T) {
	arbitrator := newTestIdentity("arb")

	tests := []struct {
		name   string
		framed string
	}{
		{"empty", ""},
		{"no_delimiters", "Winner: buyer"},
		{"missing_end", summaryBeginDelimiter + "\ntext\n" + summarySigDelimiter + "\nabcd\n"},
		{"garbage_signature", summaryBeginDelimiter + "\ntext\n" + summarySigDelimiter + "\nnot-hex\n" + summaryEndDelimiter},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := verifySummary(arbitrator.PubKeyHex(), tt.framed)
			require.ErrorIs(t, err, ErrMalformedSummary)
		})
	}
}

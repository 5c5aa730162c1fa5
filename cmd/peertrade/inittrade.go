package main

import (
	"github.com/urfave/cli/v2"
)

var inittrade = cli.Command{
	Name:  "inittrade",
	Usage: "take an offer and start the trade protocol as taker",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "offer_id",
			Usage:    "the id of the offer being taken",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "amount",
			Usage:    "the trade amount in atomic units",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "price",
			Usage:    "the agreed price",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "trade_fee",
			Usage: "the trade fee in atomic units",
		},
		&cli.Uint64Flag{
			Name:  "tx_fee",
			Usage: "the expected mining fee in atomic units",
		},
		&cli.StringFlag{
			Name:  "buyer_deposit_pct",
			Usage: "the buyer security deposit percentage",
			Value: "15",
		},
		&cli.StringFlag{
			Name:  "seller_deposit_pct",
			Usage: "the seller security deposit percentage",
			Value: "15",
		},
		&cli.BoolFlag{
			Name:  "buyer_is_maker",
			Usage: "whether the maker is the fiat-paying side",
		},
		&cli.StringFlag{
			Name:     "maker_address",
			Usage:    "the maker's node address on the relay",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "maker_pubkey",
			Usage:    "the maker's public key",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "arbitrator_address",
			Usage:    "the arbitrator's node address on the relay",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "arbitrator_pubkey",
			Usage:    "the arbitrator's public key",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "payment_account_id",
			Usage: "the local fiat payment account reference",
		},
		&cli.StringFlag{
			Name:  "payout_address",
			Usage: "the local payout address",
		},
	},
	Action: initTradeAction,
}

func initTradeAction(ctx *cli.Context) error {
	res, err := httpPost("/v1/trades", map[string]interface{}{
		"offerId":               ctx.String("offer_id"),
		"amount":                ctx.Uint64("amount"),
		"price":                 ctx.String("price"),
		"tradeFee":              ctx.Uint64("trade_fee"),
		"txFee":                 ctx.Uint64("tx_fee"),
		"buyerDepositPct":       ctx.String("buyer_deposit_pct"),
		"sellerDepositPct":      ctx.String("seller_deposit_pct"),
		"isBuyerMaker":          ctx.Bool("buyer_is_maker"),
		"makerNodeAddress":      ctx.String("maker_address"),
		"makerPubKey":           ctx.String("maker_pubkey"),
		"arbitratorNodeAddress": ctx.String("arbitrator_address"),
		"arbitratorPubKey":      ctx.String("arbitrator_pubkey"),
		"paymentAccountId":      ctx.String("payment_account_id"),
		"payoutAddress":         ctx.String("payout_address"),
	})
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

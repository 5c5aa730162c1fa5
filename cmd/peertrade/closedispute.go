package main

import (
	"github.com/urfave/cli/v2"
)

var closedispute = cli.Command{
	Name:  "closedispute",
	Usage: "close a dispute with a binding payout decision, as the arbitrator",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "dispute_id",
			Usage:    "the id of the dispute",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "winner",
			Usage: "0 for buyer, 1 for seller",
		},
		&cli.Uint64Flag{
			Name:     "buyer_amount",
			Usage:    "the buyer payout in atomic units",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "seller_amount",
			Usage:    "the seller payout in atomic units",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "notes",
			Usage: "free-form summary notes included in the signed summary",
		},
	},
	Action: closeDisputeAction,
}

func closeDisputeAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/disputes/"+ctx.String("dispute_id")+"/close",
		map[string]interface{}{
			"winner":             ctx.Int("winner"),
			"buyerPayoutAmount":  ctx.Uint64("buyer_amount"),
			"sellerPayoutAmount": ctx.Uint64("seller_amount"),
			"summaryNotes":       ctx.String("notes"),
		},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

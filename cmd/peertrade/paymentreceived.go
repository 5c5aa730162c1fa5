package main

import (
	"github.com/urfave/cli/v2"
)

var paymentreceived = cli.Command{
	Name:  "paymentreceived",
	Usage: "confirm the fiat payment arrived and publish the payout, as the seller",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "trade_id",
			Usage:    "the id of the trade",
			Required: true,
		},
	},
	Action: paymentReceivedAction,
}

func paymentReceivedAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/trades/"+ctx.String("trade_id")+"/payment-received", map[string]string{},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

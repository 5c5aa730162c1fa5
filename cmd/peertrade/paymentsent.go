package main

import (
	"github.com/urfave/cli/v2"
)

var paymentsent = cli.Command{
	Name:  "paymentsent",
	Usage: "confirm the fiat payment left, as the buyer",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "trade_id",
			Usage:    "the id of the trade",
			Required: true,
		},
	},
	Action: paymentSentAction,
}

func paymentSentAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/trades/"+ctx.String("trade_id")+"/payment-sent", map[string]string{},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

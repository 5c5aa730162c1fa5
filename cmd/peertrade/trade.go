package main

import (
	"github.com/urfave/cli/v2"
)

var trade = cli.Command{
	Name:  "trade",
	Usage: "get the status of a single trade",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "trade_id",
			Usage:    "the id of the trade",
			Required: true,
		},
	},
	Action: tradeAction,
}

func tradeAction(ctx *cli.Context) error {
	res, err := httpGet("/v1/trades/" + ctx.String("trade_id"))
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

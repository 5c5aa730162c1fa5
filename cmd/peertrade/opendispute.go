package main

import (
	"github.com/urfave/cli/v2"
)

var opendispute = cli.Command{
	Name:  "opendispute",
	Usage: "open a dispute against a trade",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "trade_id",
			Usage:    "the id of the trade",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "support_type",
			Usage: "0 for mediation, 1 for arbitration",
		},
	},
	Action: openDisputeAction,
}

func openDisputeAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/trades/"+ctx.String("trade_id")+"/disputes",
		map[string]interface{}{
			"supportType": ctx.Int("support_type"),
		},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

var reopendispute = cli.Command{
	Name:  "reopendispute",
	Usage: "resend an already opened dispute to the arbitrator",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "dispute_id",
			Usage:    "the id of the dispute",
			Required: true,
		},
	},
	Action: reopenDisputeAction,
}

func reopenDisputeAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/disputes/"+ctx.String("dispute_id")+"/reopen",
		map[string]interface{}{},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

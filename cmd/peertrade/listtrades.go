package main

import (
	"github.com/urfave/cli/v2"
)

var listtrades = cli.Command{
	Name:   "trades",
	Usage:  "get a list of all trades",
	Action: listTradesAction,
}

func listTradesAction(ctx *cli.Context) error {
	res, err := httpGet("/v1/trades")
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

package main

import (
	"github.com/urfave/cli/v2"
)

var listdisputes = cli.Command{
	Name:   "disputes",
	Usage:  "get a list of all disputes",
	Action: listDisputesAction,
}

func listDisputesAction(ctx *cli.Context) error {
	res, err := httpGet("/v1/disputes")
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

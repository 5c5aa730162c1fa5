package main

import (
	"github.com/urfave/cli/v2"
)

var disputechat = cli.Command{
	Name:  "disputechat",
	Usage: "send a chat or evidence message on a dispute",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "dispute_id",
			Usage:    "the id of the dispute",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "message",
			Usage:    "the message text",
			Required: true,
		},
	},
	Action: disputeChatAction,
}

func disputeChatAction(ctx *cli.Context) error {
	res, err := httpPost(
		"/v1/disputes/"+ctx.String("dispute_id")+"/chat",
		map[string]string{
			"message": ctx.String("message"),
		},
	)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

package main

import (
	"github.com/urfave/cli/v2"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "manage the CLI state",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "store the daemon url the CLI talks to",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "daemon_url",
					Usage: "the address of the peertraded operator interface",
					Value: "http://127.0.0.1:9000",
				},
			},
			Action: configInitAction,
		},
		{
			Name:   "show",
			Usage:  "print the current CLI state",
			Action: configShowAction,
		},
	},
}

func configInitAction(ctx *cli.Context) error {
	return setState(map[string]string{
		"daemon_url": ctx.String("daemon_url"),
	})
}

func configShowAction(ctx *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}
	for key, value := range state {
		println(key + ": " + value)
	}
	return nil
}

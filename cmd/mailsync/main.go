package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/brandon/mailsync/internal/config"
)

var version = "dev"

func main() {
	// .env is optional; it usually carries the OAuth client registration
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	// stdout carries the MCP stream
	logger.SetOutput(os.Stderr)

	app := &cli.App{
		Name:    "mailsync",
		Usage:   "Local-first mail sync engine",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath(),
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"MAILSYNC_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(logger),
			syncCommand(logger),
			tokenCommand(logger),
			reindexCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

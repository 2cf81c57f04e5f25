package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/halfwit/mpdq/cmd/mpdq/check"
	"github.com/halfwit/mpdq/cmd/mpdq/config"
	"github.com/halfwit/mpdq/cmd/mpdq/lastfm"
	"github.com/halfwit/mpdq/cmd/mpdq/query"
	"github.com/halfwit/mpdq/cmd/mpdq/update"
	"github.com/halfwit/mpdq/internal/client"
	"github.com/halfwit/mpdq/internal/mpdconn"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage %v: [flag]... <command>\n"+
			"Evaluates algebraic queries over an MPD-managed music library.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	configFile := flag.String("config", filepath.Join(os.Getenv("HOME"), ".config/mpdq/config.json"),
		"Path to config file")

	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.HelpCommand(), "")

	var cfg client.Config
	queryCmd := &query.Command{Cfg: &cfg}
	updateCmd := &update.Command{Cfg: &cfg}
	checkCmd := &check.Command{Cfg: &cfg}
	lastfmCmd := &lastfm.Command{Cfg: &cfg}

	subcommands.Register(&config.Command{}, "")
	subcommands.Register(checkCmd, "")
	subcommands.Register(lastfmCmd, "")
	subcommands.Register(queryCmd, "")
	subcommands.Register(updateCmd, "")

	flag.Parse()

	switch flag.Arg(0) {
	case "commands", "flags", "help", "config":
	default:
		if err := client.LoadConfig(*configFile, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Unable to read config file:", err)
			os.Exit(int(subcommands.ExitUsageError))
		}
		daemon, err := mpdconn.Dial(fmt.Sprintf("%v:%v", cfg.MPDHost, cfg.Port()), cfg.MPDPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to connect to MPD:", err)
			os.Exit(int(subcommands.ExitFailure))
		}
		defer daemon.Close()

		queryCmd.Daemon = daemon
		updateCmd.Daemon = daemon
		checkCmd.Daemon = daemon
		lastfmCmd.Daemon = daemon
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}

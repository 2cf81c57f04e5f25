// Package config implements mpdq's "config" subcommand: write a
// starter JSON config file, the mpdc_configure.py-equivalent
// supplemented feature.
package config

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/halfwit/mpdq/internal/client"
)

// Command is the "config" subcommand.
type Command struct {
	host string
	port int
}

func (*Command) Name() string     { return "config" }
func (*Command) Synopsis() string { return "write a starter config file" }
func (*Command) Usage() string {
	return `config <path>:
	Write a starter JSON config file to path (or to
	~/.config/mpdq/config.json if no path is given), with the MPD
	host/port taken from -mpd-host/-mpd-port and the collections file
	and cache directory placed under $HOME.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.host, "mpd-host", "localhost", "MPD daemon host")
	f.IntVar(&cmd.port, "mpd-port", 6600, "MPD daemon port")
}

func (cmd *Command) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	path := filepath.Join(os.Getenv("HOME"), ".config/mpdq/config.json")
	if args := f.Args(); len(args) > 0 {
		path = args[0]
	}

	home := os.Getenv("HOME")
	cfg := client.Config{
		MPDHost:         cmd.host,
		MPDPort:         cmd.port,
		CollectionsPath: filepath.Join(home, ".config/mpdq/collections"),
		CacheDir:        filepath.Join(home, ".cache/mpdq"),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "config: creating directory:", err)
		return subcommands.ExitFailure
	}
	f2, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: creating file:", err)
		return subcommands.ExitFailure
	}
	defer f2.Close()

	enc := json.NewEncoder(f2)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config: writing file:", err)
		return subcommands.ExitFailure
	}

	fmt.Println("Wrote", path)
	return subcommands.ExitSuccess
}

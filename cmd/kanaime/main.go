// kanaime is the control CLI: it starts the servers and inspects them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"kanaime/internal/app"
	"kanaime/internal/config"
	"kanaime/internal/ipc"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	args := flag.Args()[1:]
	switch cmd := flag.Arg(0); cmd {
	case "launch":
		cmdLaunch(args)
	case "ping":
		cmdPing()
	case "reload":
		cmdReload()
	case "config":
		cmdConfig(args)
	case "version":
		fmt.Println("kanaime", app.Version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `kanaime - Japanese input method

Usage: kanaime [options] <command> [args]

Commands:
  launch [-tui]            Start the engine and window servers and keep them running
  ping                     Check that both servers answer
  reload                   Ask the engine to reload its configuration file
  config print [format]    Print the effective configuration (toml, json or yaml)
  config validate          Check the configuration file
  config init              Write the default configuration if none exists
  version                  Print the version
  help                     Show this help message

Options:
  -config <path>  Path to config file (default: $KANAIME_CONFIG or the platform config dir)`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		app.Fatal("loading config: %v", err)
	}
	return cfg
}

func cmdPing() {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	failed := false
	check := func(name, endpoint string, ping func() error) {
		if err := ping(); err != nil {
			fmt.Printf("%-7s %s: %v\n", name, endpoint, err)
			failed = true
			return
		}
		fmt.Printf("%-7s %s: ok\n", name, endpoint)
	}

	check("engine", cfg.Engine.Endpoint, func() error {
		c, err := ipc.DialEngine(ctx, ipc.ClientConfig{Endpoint: cfg.Engine.Endpoint, Service: "engine"})
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Ping(ctx)
	})
	check("window", cfg.Window.Endpoint, func() error {
		c, err := ipc.DialWindow(ctx, ipc.ClientConfig{Endpoint: cfg.Window.Endpoint, Service: "window"})
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Ping(ctx)
	})
	if failed {
		os.Exit(1)
	}
}

func cmdReload() {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := ipc.DialEngine(ctx, ipc.ClientConfig{Endpoint: cfg.Engine.Endpoint, Service: "engine"})
	if err != nil {
		app.Fatal("connecting to engine: %v", err)
	}
	defer c.Close()

	if err := c.UpdateConfig(ctx, ipc.UpdateConfigRequest{}); err != nil {
		var remote *ipc.RemoteError
		if errors.As(err, &remote) {
			app.Fatal("engine refused reload: %s", remote.Message)
		}
		app.Fatal("reload: %v", err)
	}
	fmt.Println("Engine configuration reloaded")
}

func cmdConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kanaime config <print|validate|init>")
		os.Exit(1)
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	switch args[0] {
	case "print":
		format := config.FormatOf(path)
		if len(args) > 1 {
			format = args[1]
		}
		data, err := config.Encode(loadConfig(), format)
		if err != nil {
			app.Fatal("%v", err)
		}
		os.Stdout.Write(data)

	case "validate":
		issues := config.Check(loadConfig())
		for _, w := range issues.Warnings() {
			fmt.Printf("warning: %s\n", w.Error())
		}
		for _, e := range issues.Errors() {
			fmt.Printf("error:   %s\n", e.Error())
		}
		if issues.HasErrors() {
			os.Exit(1)
		}
		fmt.Printf("%s: ok\n", path)

	case "init":
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			app.Fatal("%v", err)
		}
		if created {
			fmt.Printf("Wrote default configuration to %s\n", path)
		} else {
			fmt.Printf("%s already exists\n", path)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		os.Exit(1)
	}
}

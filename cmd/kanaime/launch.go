package main

import (
	"context"
	"flag"
	"os"

	"kanaime/internal/app"
	"kanaime/internal/launcher"
)

// cmdLaunch runs the engine and window servers under a supervisor until
// interrupted.
func cmdLaunch(args []string) {
	fs := flag.NewFlagSet("launch", flag.ExitOnError)
	tui := fs.Bool("tui", false, "draw the candidate window in this terminal")
	fs.Parse(args)

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Start(ctx, "launcher", *configPath)
	if err != nil {
		app.Fatal("%v", err)
	}

	procs, err := processes(*configPath, *tui)
	if err != nil {
		rt.Close(context.Background())
		app.Fatal("%v", err)
	}

	s := launcher.New(launcher.Options{
		Processes: procs,
		Logger:    rt.Logger.Logger,
	})
	err = s.Run(ctx)
	if err != nil {
		rt.Logger.Error("launcher stopped", "error", err)
	}
	rt.Close(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func processes(configPath string, tui bool) ([]launcher.Process, error) {
	var common []string
	if configPath != "" {
		common = append(common, "-config", configPath)
	}

	enginePath, err := launcher.Locate("kanaime-engine")
	if err != nil {
		return nil, err
	}
	windowPath, err := launcher.Locate("kanaime-window")
	if err != nil {
		return nil, err
	}

	windowArgs := append([]string{}, common...)
	if !tui {
		windowArgs = append(windowArgs, "-headless")
	}
	return []launcher.Process{
		{Name: "engine", Path: enginePath, Args: common},
		{Name: "window", Path: windowPath, Args: windowArgs},
	}, nil
}

// kanaime-playground is a terminal text editor that types through the full
// input pipeline, for trying the engine without installing the IME.
//
// By default it connects to running engine and window servers. With -local
// both run inside this process against the configured dictionary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kanaime/internal/app"
	"kanaime/internal/engine"
	"kanaime/internal/ime"
	"kanaime/internal/playground"
	"kanaime/internal/window"
)

func main() {
	configPath := flag.String("config", "", "configuration file")
	local := flag.Bool("local", false, "run the engine and window in this process")
	width := flag.Int("width", 80, "wrap the document at this many columns")
	flag.Parse()

	// The terminal belongs to the editor; keep log lines out of it.
	if os.Getenv("KANAIME_LOG_OUTPUT") == "" {
		os.Setenv("KANAIME_LOG_OUTPUT", "file")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Start(ctx, "playground", *configPath)
	if err != nil {
		app.Fatal("%v", err)
	}
	err = run(ctx, rt, *local, *width)
	if err != nil {
		rt.Logger.Error("playground failed", "error", err)
	}
	rt.Close(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rt *app.Runtime, local bool, width int) error {
	var (
		eng ime.ConversionEngine
		win ime.CandidateWindow
	)
	if local {
		svc, err := engine.Open(ctx, rt.Config, engine.Options{
			Metrics: rt.Metrics,
			Logger:  rt.Logger.WithComponent("kkc").Logger,
		})
		if err != nil {
			return err
		}
		defer svc.Close()
		eng = svc
		win = window.NewController(64, rt.Logger.WithComponent("window").Logger)
	} else {
		e, w, err := rt.Dial(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		defer w.Close()
		eng, win = e, w
	}

	m, err := playground.New(ctx, playground.Options{
		Engine:  eng,
		Window:  win,
		Modes:   rt.Modes(),
		Width:   width,
		Logger:  rt.Logger.WithComponent("playground").Logger,
		Metrics: rt.Metrics,
	})
	if err != nil {
		return err
	}
	return playground.Run(ctx, m)
}

// kanaime-window is the candidate window server.
//
// It answers the window protocol on the configured endpoint and draws the
// candidate list in the terminal. With -headless the state is only logged.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"kanaime/internal/app"
	"kanaime/internal/ipc"
	"kanaime/internal/window"
)

func main() {
	configPath := flag.String("config", "", "configuration file")
	endpoint := flag.String("endpoint", "", "listen here instead of window.endpoint")
	headless := flag.Bool("headless", false, "do not draw; log window changes")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address")
	flag.Parse()

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Start(ctx, "window", *configPath)
	if err != nil {
		app.Fatal("%v", err)
	}
	err = serve(ctx, rt, *endpoint, *headless, *metricsAddr)
	if err != nil {
		rt.Logger.Error("window failed", "error", err)
	}
	rt.Close(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, rt *app.Runtime, endpoint string, headless bool, metricsAddr string) error {
	cfg := rt.Config
	ctrl := window.NewController(64, rt.Logger.Logger)

	if endpoint == "" {
		endpoint = cfg.Window.Endpoint
	}
	srv := ipc.NewServer(ipc.ServerConfig{
		Endpoint:  endpoint,
		Service:   "window",
		Logger:    rt.Logger.WithComponent("ipc").Logger,
		Recoverer: rt.Recoverer,
	}, ipc.NewWindowHandler(ctrl))
	if err := srv.Listen(); err != nil {
		return err
	}
	rt.Health.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return rt.ServeMetrics(gctx, metricsAddr) })
	g.Go(func() error {
		if headless {
			return logActions(gctx, rt, ctrl)
		}
		return draw(gctx, ctrl, cfg.Window.PageSize)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

var errQuit = errors.New("window closed by the user")

// draw runs the terminal view. Quitting it stops the server.
func draw(ctx context.Context, ctrl *window.Controller, pageSize int) error {
	_, err := tea.NewProgram(window.NewModel(ctrl, pageSize), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	return errQuit
}

func logActions(ctx context.Context, rt *app.Runtime, ctrl *window.Controller) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-ctrl.Actions():
			rt.Logger.Debug("window changed",
				"action", a.Kind,
				"visible", a.State.Visible,
				"candidates", a.State.Candidates,
				"selection", a.State.Selection,
				"mode", a.State.ModeLabel)
		}
	}
}

// kanaime-engine is the conversion engine server.
//
// It answers the engine protocol on the configured endpoint, converting
// against the SQLite dictionary, and applies configuration changes when the
// file is edited or a client sends update_config.
//
//	kanaime-engine [-config path] [-endpoint path]
//	kanaime-engine -import words.tsv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"kanaime/internal/app"
	"kanaime/internal/engine"
	"kanaime/internal/ipc"
	"kanaime/internal/kkc"
)

func main() {
	configPath := flag.String("config", "", "configuration file")
	endpoint := flag.String("endpoint", "", "listen here instead of engine.endpoint")
	importPath := flag.String("import", "", "import a reading<TAB>surface file into the dictionary and exit")
	flag.Parse()

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Start(ctx, "engine", *configPath)
	if err != nil {
		app.Fatal("%v", err)
	}

	if *importPath != "" {
		err = importDictionary(ctx, rt.Config.Engine.DictionaryPath, *importPath)
	} else {
		err = serve(ctx, rt, *endpoint)
	}
	if err != nil {
		rt.Logger.Error("engine failed", "error", err)
	}
	rt.Close(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func importDictionary(ctx context.Context, dictPath, src string) error {
	dict, err := kkc.OpenDictionary(dictPath)
	if err != nil {
		return err
	}
	defer dict.Close()

	n, err := dict.ImportFile(ctx, src)
	if err != nil {
		return err
	}
	total, err := dict.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d entries (%d total) into %s\n", n, total, dictPath)
	return nil
}

func serve(ctx context.Context, rt *app.Runtime, endpoint string) error {
	cfg := rt.Config
	svc, err := engine.Open(ctx, cfg, engine.Options{
		Loader:  rt.Loader,
		Metrics: rt.Metrics,
		Logger:  rt.Logger.WithComponent("kkc").Logger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := rt.Loader.Watch(); err != nil {
		rt.Logger.Warn("configuration will not be reloaded on change", "error", err)
	}

	if endpoint == "" {
		endpoint = cfg.Engine.Endpoint
	}
	srv := ipc.NewServer(ipc.ServerConfig{
		Endpoint:  endpoint,
		Service:   "engine",
		Logger:    rt.Logger.WithComponent("ipc").Logger,
		Recoverer: rt.Recoverer,
	}, ipc.NewEngineHandler(svc))
	if err := srv.Listen(); err != nil {
		return err
	}
	rt.Health.Register("dictionary", true, svc.Ping)
	rt.Health.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return rt.ServeMetrics(gctx, cfg.Telemetry.MetricsAddr) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-rt.Loader.Errors():
				rt.Logger.Warn("configuration reload failed", "error", err)
			}
		}
	})
	return g.Wait()
}

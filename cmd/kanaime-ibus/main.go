//go:build linux

// kanaime-ibus is the IBus engine process. ibus-daemon starts it with
// -ibus; it then owns the kanaime bus name and serves one engine object per
// input context, talking to the engine and window servers.
//
//	kanaime-ibus -install     register the component and restart IBus
//	kanaime-ibus -uninstall   remove the component
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kanaime/internal/app"
	"kanaime/internal/ime"
)

func main() {
	configPath := flag.String("config", "", "configuration file")
	_ = flag.Bool("ibus", false, "started by ibus-daemon")
	install := flag.Bool("install", false, "install the IBus component and restart IBus")
	uninstall := flag.Bool("uninstall", false, "remove the IBus component")
	flag.Parse()

	switch {
	case *install:
		cmdInstall()
		return
	case *uninstall:
		cmdUninstall()
		return
	}

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Start(ctx, "ibus", *configPath)
	if err != nil {
		app.Fatal("%v", err)
	}
	err = run(ctx, rt)
	if err != nil {
		rt.Logger.Error("ibus engine failed", "error", err)
	}
	rt.Close(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, rt *app.Runtime) error {
	eng, win, err := rt.Dial(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer win.Close()

	conn, err := ime.ConnectIBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	factory := ime.NewIBusFactory(ctx, conn, ime.IBusOptions{
		Engine:    eng,
		Window:    win,
		Modes:     rt.Modes(),
		Logger:    rt.Logger.WithComponent("ibus").Logger,
		Metrics:   rt.Metrics,
		Recoverer: rt.Recoverer,
	})
	if err := ime.Register(conn, factory); err != nil {
		return err
	}
	rt.Logger.Info("registered with ibus", "name", ime.KanaimeBusName)

	<-ctx.Done()
	return nil
}

func cmdInstall() {
	exe, err := os.Executable()
	if err != nil {
		app.Fatal("%v", err)
	}
	dir, err := ime.IBusComponentDir()
	if err != nil {
		app.Fatal("%v", err)
	}
	path, err := ime.InstallIBusComponent(dir, exe)
	if err != nil {
		app.Fatal("%v", err)
	}
	fmt.Printf("Installed %s\n", path)

	if err := ime.RestartIBus(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not restart IBus: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'ibus restart' to pick up the new engine.")
	}
}

func cmdUninstall() {
	dir, err := ime.IBusComponentDir()
	if err != nil {
		app.Fatal("%v", err)
	}
	if err := ime.UninstallIBusComponent(dir); err != nil {
		app.Fatal("%v", err)
	}
	fmt.Println("Removed the kanaime IBus component")
}

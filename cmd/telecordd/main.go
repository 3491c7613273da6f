package main

import (
	"flag"
	"os"

	"go.uber.org/fx"

	"github.com/pyatkov/telecord/internal/config"
	"github.com/pyatkov/telecord/internal/creds"
	"github.com/pyatkov/telecord/internal/daemon"
)

func main() {
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config and the ~/.telecord default)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{
			DataDir: resolveDataDir(*dataDirFlag),
			Input:   os.Stdin,
			Output:  os.Stdout,
		}),
	)

	app.Run()
}

// resolveDataDir picks the data directory: flag, then config.toml's
// data_dir, then ~/.telecord.
func resolveDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	base := creds.BaseDir()
	if cfg, err := config.Load(creds.ConfigPath(base)); err == nil && cfg.DataDir != "" {
		return cfg.DataDir
	}
	return base
}

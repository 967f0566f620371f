package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"netqual/bufferbloat"
	"netqual/config"
	"netqual/diag"
	"netqual/load"
)

const versionString = "netqual 0.3.1"

var (
	configPath string
	outPath    string
	watch      bool
	noBloat    bool
	debug      bool
	version    bool
)

func main() {
	flag.StringVar(&configPath, "config", "", "Path to netqual.yaml")
	flag.StringVar(&outPath, "out", "", "Write the snapshot JSON to this file instead of stdout")
	flag.BoolVar(&watch, "watch", false, "Keep running and redo the diagnostics whenever the config file changes")
	flag.BoolVar(&noBloat, "no-bufferbloat", false, "Skip the bufferbloat test")
	flag.BoolVar(&debug, "debug", false, "Verbose logging")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Parse()

	if version {
		os.Stdout.WriteString(versionString + "\n")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatal("Unable to load configuration: ", err)
	}
	applyLogLevel(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runOnce(ctx, cfg)

	if !watch {
		return
	}

	path := configPath
	if path == "" {
		path = config.DefaultFilename
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Fatal("Unable to watch configuration: ", err)
	}
	defer watcher.Close()
	// Watch the directory: editors replace the file, which drops a watch
	// placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logrus.Fatal("Unable to watch configuration: ", err)
	}

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[ EXIT ] interrupted")
			return
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logrus.Info("[ CONFIG_RELOAD ] ", event.Name)
			cfg, err = config.Load(path)
			if err != nil {
				logrus.Warn("[ CONFIG_RELOAD ] keeping previous configuration: ", err)
				continue
			}
			applyLogLevel(cfg)
			runOnce(ctx, cfg)
		case err := <-watcher.Errors:
			logrus.Warn("[ CONFIG_WATCH ] ", err)
		}
	}
}

func runOnce(ctx context.Context, cfg config.Config) {
	if ctx.Err() != nil {
		return
	}

	o := diag.New(cfg.Servers)
	o.NewBloat = func(p diag.Prober, source string) diag.BloatTester {
		g := load.New(source)
		g.DownloadURLs = cfg.Traffic.DownloadURLs
		g.UploadURLs = cfg.Traffic.UploadURLs
		return bufferbloat.NewTester(p, g, o.Catalog)
	}

	snap := o.Run(ctx, diag.Options{
		PingCount:           cfg.PingCount,
		PingTimeout:         cfg.PingTimeout.Duration,
		Bufferbloat:         cfg.Bufferbloat.Enabled && !noBloat,
		BufferbloatDuration: cfg.Bufferbloat.Duration.Duration,
	})

	logrus.Info("[ SUMMARY ] ", snap.Summary)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logrus.Error("Unable to encode snapshot: ", err)
		return
	}
	if outPath == "" {
		os.Stdout.Write(append(data, '\n'))
		return
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		logrus.Error("Unable to write snapshot: ", err)
	}
}

func applyLogLevel(cfg config.Config) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

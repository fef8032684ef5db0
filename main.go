package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Luzifer/rconfig/v2"
	"github.com/sirupsen/logrus"

	"github.com/Luzifer/vrf-extract/assets"
	"github.com/Luzifer/vrf-extract/material"
)

const dirPermissions = 0o750

var (
	cfg = struct {
		AliasColorKeys bool     `flag:"alias-color-keys" default:"false" description:"Store textures of g_tColor1 / g_tColor2 under g_tColor when exporting materials"`
		Blocks         []string `flag:"blocks,b" description:"Only list blocks of these kinds"`
		Dest           string   `flag:"dest,d" default:"." description:"Path prefix to export files to"`
		Dump           string   `flag:"dump" default:"" description:"Dump decoded data (json, yaml, cbor)"`
		Export         bool     `flag:"export,x" default:"false" description:"Export textures and dumps to files (if not given resources are just listed)"`
		ImageFormat    string   `flag:"image-format" default:"png" description:"Format of exported textures (png, webp)"`
		LogLevel       string   `flag:"log-level" default:"info" description:"Log level (debug, info, warn, error, fatal)"`
		SearchPath     []string `flag:"search-path,s" description:"Directories to resolve referenced assets in"`
		VersionAndExit bool     `flag:"version" default:"false" description:"Prints current version and exits"`
		Workers        int      `flag:"workers,w" default:"4" description:"Number of resources to process in parallel"`
	}{}

	version = "dev"
)

func initApp() (err error) {
	if err = rconfig.ParseAndValidate(&cfg); err != nil {
		return fmt.Errorf("parsing CLI options: %w", err)
	}

	l, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log-level: %w", err)
	}
	logrus.SetLevel(l)

	if _, ok := imageEncoders[cfg.ImageFormat]; !ok {
		return fmt.Errorf("unsupported image-format %q", cfg.ImageFormat)
	}

	if _, ok := dumpEncoders[cfg.Dump]; cfg.Dump != "" && !ok {
		return fmt.Errorf("unsupported dump format %q", cfg.Dump)
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return nil
}

func main() {
	var err error
	if err = initApp(); err != nil {
		logrus.WithError(err).Fatal("initializing app")
	}

	if cfg.VersionAndExit {
		fmt.Printf("vrf-extract %s\n", version) //nolint:forbidigo
		os.Exit(0)
	}

	files := rconfig.Args()[1:]
	if len(files) == 0 {
		logrus.Fatal("no resource files given")
	}

	if cfg.Export {
		if err = ensureDir(cfg.Dest); err != nil {
			logrus.WithError(err).Fatal("preparing destination")
		}
	}

	var loaderOpts []material.Option
	if cfg.AliasColorKeys {
		loaderOpts = append(loaderOpts, material.WithColorKeyAliasing())
	}

	p := &processor{
		Dest:        cfg.Dest,
		Export:      cfg.Export,
		Blocks:      cfg.Blocks,
		ImageFormat: cfg.ImageFormat,
		DumpFormat:  cfg.Dump,
		Loader:      material.NewLoader(assets.NewDirResolver(cfg.SearchPath...), loaderOpts...),
		Out:         os.Stdout,
	}

	var (
		failed    atomic.Int64
		processed atomic.Int64
		jobs      = make(chan string, cfg.Workers*2) //nolint:mnd
		wg        sync.WaitGroup
	)

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				if err := p.Process(file); err != nil {
					logrus.WithError(err).WithField("file", file).Error("processing resource")
					failed.Add(1)
				}
				processed.Add(1)
			}
		}()
	}

	for _, file := range files {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	logrus.WithFields(logrus.Fields{
		"processed": processed.Load(),
		"failed":    failed.Load(),
	}).Debug("processing finished")

	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s exists and is no directory", dir)

	case err == nil:
		return nil

	case !os.IsNotExist(err):
		return fmt.Errorf("accessing %s: %w", dir, err)
	}

	if err = os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	return nil
}

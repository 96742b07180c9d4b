package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/driver"
	"github.com/funvibe/sigcheck/internal/utils"
)

// options are the flags every command shares.
type options struct {
	configPath string
	verbose    bool
	noColor    bool
	workers    int
	failOnIE   bool
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to sigcheck.yaml (default: searched upward from the first path)")
	fs.BoolVar(&o.verbose, "verbose", false, "log driver activity to stderr")
	fs.BoolVar(&o.noColor, "no-color", false, "disable coloured output")
	fs.IntVar(&o.workers, "workers", 0, "number of parallel workers (default: from config)")
	fs.BoolVar(&o.failOnIE, "fail-on-internal-error", false, "treat checker bugs as fatal")
}

func newFlagSet(name string, stderr io.Writer, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("sigcheck "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	o.register(fs)
	return fs
}

// project is a checked set of files plus the driver that owns them.
type project struct {
	conf   *config.Config
	root   string
	logger *log.Logger
	driver *driver.Driver
	files  []string
	mtimes map[string]time.Time
}

func (o *options) loadConfig(paths []string) (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		start := "."
		if len(paths) > 0 {
			start = utils.GetSourceDir(paths[0])
		}
		found, err := config.FindConfig(start)
		if err != nil {
			return nil, "", err
		}
		path = found
	}
	var conf *config.Config
	root := "."
	if path == "" {
		conf = config.Default()
	} else {
		c, err := config.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		conf, root = c, filepath.Dir(path)
	}
	if o.workers > 0 {
		conf.Workers = o.workers
	}
	if o.failOnIE {
		conf.FailOnInternalError = true
	}
	return conf, root, nil
}

// open loads the configuration, discovers the files under paths and runs a
// full check, publishing the first snapshot.
func (o *options) open(ctx context.Context, paths []string, stderr io.Writer) (*project, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input paths")
	}
	conf, root, err := o.loadConfig(paths)
	if err != nil {
		return nil, err
	}
	out := io.Discard
	if o.verbose {
		out = stderr
	}
	logger := log.New(out, "sigcheck: ", 0)

	files, err := utils.DiscoverFiles(root, paths, conf.Ignore)
	if err != nil {
		return nil, err
	}
	logger.Printf("%d file(s) under %v", len(files), paths)

	p := &project{
		conf:   conf,
		root:   root,
		logger: logger,
		driver: driver.New(conf, logger),
		files:  files,
		mtimes: make(map[string]time.Time, len(files)),
	}
	progs, err := utils.LoadFiles(ctx, files, conf.Workers)
	if err != nil {
		return nil, err
	}
	p.stamp(files)
	if _, err := p.driver.Submit(ctx, progs); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *project) stamp(files []string) {
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			p.mtimes[f] = info.ModTime()
		}
	}
}

func (p *project) snapshot() *driver.Snapshot { return p.driver.Latest() }

// reload re-reads the files modified since they were last loaded and submits
// them as an edit. It returns the number of files submitted.
func (p *project) reload(ctx context.Context, paths []string) (int, error) {
	files, err := utils.DiscoverFiles(p.root, paths, p.conf.Ignore)
	if err != nil {
		return 0, err
	}
	var changed []string
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return 0, err
		}
		if seen, ok := p.mtimes[f]; !ok || info.ModTime().After(seen) {
			changed = append(changed, f)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	progs, err := utils.LoadFiles(ctx, changed, p.conf.Workers)
	if err != nil {
		return 0, err
	}
	if _, err := p.driver.Submit(ctx, progs); err != nil {
		return 0, err
	}
	p.stamp(changed)
	p.files = files
	return len(changed), nil
}

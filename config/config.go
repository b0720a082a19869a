// Package config loads and hot-reloads the subprocess launch parameters
// a host application uses to start one or more MCP servers over stdio.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerEntry mirrors mcp.StdioParameters without importing the root
// package, keeping config free of a dependency on the transport it feeds.
type ServerEntry struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Cwd     string            `yaml:"cwd"`
}

// File is the top-level shape of a servers config document.
type File struct {
	Servers map[string]ServerEntry `yaml:"servers"`
}

// Load reads and parses a YAML servers config from path.
func Load(path string) (*File, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// LoadDotEnv loads a .env file into the process environment so "${NAME}"
// references in a ServerEntry.Env can resolve against secrets that don't
// belong in the YAML file itself. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load dotenv %s: %w", path, err)
	}
	return nil
}

// OnChange is called with the freshly reloaded config after a watched file
// changes. A reload that fails to parse logs nothing itself — callers see
// the error and decide whether to keep serving the last-good File.
type OnChange func(*File, error)

// Watcher reloads a servers config whenever its file (or any file matching
// pattern within its directory) changes on disk.
type Watcher struct {
	path    string
	pattern glob.Glob
	watcher *fsnotify.Watcher
	onChange OnChange

	mu   sync.Mutex
	done chan struct{}
}

// WatchFile starts watching path's directory for writes to path itself, or,
// when pattern is non-empty, to any sibling file matching it (e.g.
// "*.yaml"). Every reload parses path alone: a matching sibling only
// triggers the reload, its contents are not loaded or merged.
func WatchFile(path string, pattern string, onChange OnChange) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	var g glob.Glob
	if pattern != "" {
		g, err = glob.Compile(pattern)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("config: compile pattern %q: %w", pattern, err)
		}
	}

	w := &Watcher{
		path:     path,
		pattern:  g,
		watcher:  fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f, err := Load(w.path)
			w.onChange(f, err)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) == filepath.Clean(w.path) {
		return true
	}
	if w.pattern == nil {
		return false
	}
	return w.pattern.Match(filepath.Base(event.Name))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

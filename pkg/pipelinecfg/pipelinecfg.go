// Package pipelinecfg models spec.md §6's one configuration surface
// (CONN_PIPELINING) as a small YAML document, plus the companion tunables
// an operator running this pipeline would plausibly want alongside it, and
// hot-reloads it with fsnotify so a running process picks up edits without
// a restart.
package pipelinecfg

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/bucketlog"
)

// Config is the document shape read from disk.
type Config struct {
	// ConnPipelining mirrors spec.md §6's CONN_PIPELINING ∈ {"Y","N"},
	// propagated to every registered bucket's set_config.
	ConnPipelining bool `yaml:"conn_pipelining"`

	// MaxLineLength overrides bucket.LineLimit when non-zero.
	MaxLineLength int `yaml:"max_line_length"`

	// EnforceOCSPStapling makes an invalid staple, or a callback's rejection,
	// fatal to the TLS handshake instead of merely logged. A missing staple
	// is fatal only when an OCSP callback rejects it.
	EnforceOCSPStapling bool `yaml:"enforce_ocsp_stapling"`
}

func (c Config) toBucketConfig() bucket.Config {
	return bucket.Config{
		ConnPipelining:      c.ConnPipelining,
		MaxLineLength:       c.MaxLineLength,
		EnforceOCSPStapling: c.EnforceOCSPStapling,
	}
}

func (c Config) validate() error {
	if c.MaxLineLength < 0 {
		return fmt.Errorf("max_line_length must not be negative")
	}
	return nil
}

// Load parses and validates a YAML config document from path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher applies a config document to a registered set of buckets on
// load, and again on every filesystem change fsnotify reports for it.
type Watcher struct {
	path string
	log  bucketlog.Logger

	mu      sync.Mutex
	current Config
	buckets []bucket.Bucket

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads path once; Start begins watching it for changes. Call
// Register before or after Start; a registered bucket always receives the
// config current at the time of registration.
func NewWatcher(path string, log bucketlog.Logger) (*Watcher, error) {
	if log == nil {
		log = bucketlog.Nop{}
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log, current: cfg, done: make(chan struct{})}
	return w, nil
}

// Current returns the most recently applied configuration.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Register adds b to the set of buckets that receive set_config on every
// load, applying the currently loaded config to it immediately.
func (w *Watcher) Register(b bucket.Bucket) {
	w.mu.Lock()
	w.buckets = append(w.buckets, b)
	cfg := w.current
	w.mu.Unlock()
	b.SetConfig(cfg.toBucketConfig())
}

// Start launches the fsnotify watch loop. Stop tears it down.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	w.watcher = fw
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Log(bucketlog.LevelWarn, "pipelinecfg", "watch error: "+err.Error())
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Log(bucketlog.LevelWarn, "pipelinecfg", "reload failed, keeping prior config: "+err.Error())
		return
	}
	w.mu.Lock()
	w.current = cfg
	buckets := append([]bucket.Bucket(nil), w.buckets...)
	w.mu.Unlock()

	bc := cfg.toBucketConfig()
	for _, b := range buckets {
		b.SetConfig(bc)
	}
	w.log.Log(bucketlog.LevelInfo, "pipelinecfg", "config reloaded")
}

// Stop ends the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

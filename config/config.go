// Package config loads and hot-reloads the runner configuration from a
// YAML file, defaults layered under whatever the file overrides, the way
// the teacher's cmd/multiserver bootstraps its own Config.
package config

import (
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	yml "gopkg.in/yaml.v2"
)

// Config is the complete set of knobs a running driver needs.
type Config struct {
	// Device selects the transport: "serial" or "tcp".
	Device string `koanf:"device" yaml:"device"`
	// SerialPort is the path to the UART device (e.g. /dev/ttyUSB0),
	// used when Device is "serial".
	SerialPort string `koanf:"serial_port" yaml:"serial_port"`
	// SerialBaud is the line rate; the bus itself always runs at 2400,
	// but the field is kept configurable for loopback/test rigs.
	SerialBaud int `koanf:"serial_baud" yaml:"serial_baud"`
	// NetworkAddr is the host:port to dial, used when Device is "tcp".
	NetworkAddr string `koanf:"network_addr" yaml:"network_addr"`

	// Address is this station's own master address.
	Address byte `koanf:"address" yaml:"address"`
	// MaxLockCounter is the idle-SYN count required before arbitrating;
	// the handler replaces values above 25 with the default of 3.
	MaxLockCounter byte `koanf:"max_lock_counter" yaml:"max_lock_counter"`
	// AccessTimeoutUs is the arbitration echo settle time in microseconds.
	AccessTimeoutUs uint16 `koanf:"access_timeout_us" yaml:"access_timeout_us"`
	// OpenRetryMax bounds the device reopen backoff.
	OpenRetryMax int `koanf:"open_retry_max" yaml:"open_retry_max"`

	// HTTPAddr is the listen address for the diagnostics HTTP surface;
	// empty disables it.
	HTTPAddr string `koanf:"http_addr" yaml:"http_addr"`

	// LogLevel names the minimum severity the logger emits.
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

// Default returns the configuration the driver falls back to when no
// file is present or a setting is left unspecified.
func Default() Config {
	return Config{
		Device:          "serial",
		SerialPort:      "/dev/ttyUSB0",
		SerialBaud:      2400,
		Address:         0xFF,
		MaxLockCounter:  3,
		AccessTimeoutUs: 4400,
		OpenRetryMax:    10,
		HTTPAddr:        ":8124",
		LogLevel:        "info",
	}
}

// Loader owns the koanf instance backing a config file, optionally
// watching it for changes and notifying subscribers on every reload.
type Loader struct {
	k    *koanf.Koanf
	path string

	mu          sync.RWMutex
	current     Config
	subscribers []func(Config)

	watcher *fsnotify.Watcher
}

// NewLoader loads path (if it exists) over the defaults and returns a
// Loader ready to serve the current Config and, if Watch is called,
// hot-reload it.
func NewLoader(path string) (*Loader, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "loading config defaults")
	}
	l := &Loader{k: k, path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	if l.path != "" {
		if err := l.k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			if !strings.Contains(err.Error(), "no such file") {
				return errors.Wrapf(err, "loading config file %s", l.path)
			}
		}
	}
	var c Config
	if err := l.k.Unmarshal("", &c); err != nil {
		return errors.Wrap(err, "unmarshaling config")
	}
	l.mu.Lock()
	l.current = c
	var subs []func(Config)
	subs = append(subs, l.subscribers...)
	l.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
	return nil
}

// Current returns the most recently loaded Config.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnReload registers fn to be called, with the freshly unmarshaled
// Config, every time the backing file changes and is successfully
// reloaded. Registering after Watch has already fired a reload is safe;
// fn just will not see that one.
func (l *Loader) OnReload(fn func(Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Watch starts an fsnotify watch on the config file's directory and
// reloads whenever the file is written. It returns immediately; the
// watch runs in a background goroutine until Close is called. A Loader
// constructed with an empty path has nothing to watch and Watch is a
// no-op.
func (l *Loader) Watch() error {
	if l.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "starting config watcher")
	}
	dir := dirOf(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return errors.Wrapf(err, "watching %s", dir)
	}
	l.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == l.path && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					l.reload()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Close stops the watch goroutine, if one was started.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

// WriteDefault writes the default configuration, with its yaml tags, to
// path, for a first run or for a user starting from a known-good file
// (mirroring the teacher's mkconf command).
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(Default())
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}

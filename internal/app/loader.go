package app

import (
	"context"
	"sync"

	"github.com/fieldscan/fieldscan/internal/buildinfo"
	"github.com/fieldscan/fieldscan/internal/conf"
)

// Loader defers loading settings and services until a command needs them.
// Flags fill ConfigFile and Debug before the first call.
type Loader struct {
	Build      *buildinfo.Context
	ConfigFile string
	Debug      bool

	mu       sync.Mutex
	settings *conf.Settings
	app      *App
}

// Settings loads the configuration once
func (l *Loader) Settings() (*conf.Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settingsLocked()
}

func (l *Loader) settingsLocked() (*conf.Settings, error) {
	if l.settings != nil {
		return l.settings, nil
	}
	s, err := conf.Load(l.ConfigFile)
	if err != nil {
		return nil, err
	}
	if l.Debug {
		s.Debug = true
	}
	l.settings = s
	return s, nil
}

// Open builds the App once and runs the startup silent refresh. An expired
// session does not fail Open; offline work continues and submissions queue.
func (l *Loader) Open(ctx context.Context) (*App, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.app != nil {
		return l.app, nil
	}

	s, err := l.settingsLocked()
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, s, l.Build)
	if err != nil {
		return nil, err
	}
	_ = a.Authenticate(ctx)
	l.app = a
	return a, nil
}

// Close closes the App if one was opened
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.app != nil {
		l.app.Close()
		l.app = nil
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// templateDoc is the on-disk shape of a prompt template:
//
//	prefix: |
//	  Act as ...: '
//	suffix: |
//	  '. Answer as JSON.
type templateDoc struct {
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`
}

// LoadTemplate reads a YAML prompt template. Both fragments are required.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template: %w", err)
	}

	var doc templateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Template{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	if doc.Prefix == "" || doc.Suffix == "" {
		return Template{}, fmt.Errorf("template %s: prefix and suffix are required", path)
	}
	return Template{Prefix: doc.Prefix, Suffix: doc.Suffix}, nil
}

// TemplateFile is a TemplateSource backed by a YAML file. Watch reloads it on
// change; a reload that fails keeps the last good template.
type TemplateFile struct {
	path     string
	current  atomic.Pointer[Template]
	debounce time.Duration
}

func NewTemplateFile(path string) (*TemplateFile, error) {
	t, err := LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	f := &TemplateFile{path: filepath.Clean(path), debounce: 100 * time.Millisecond}
	f.current.Store(&t)
	return f, nil
}

func (f *TemplateFile) Current() Template {
	return *f.current.Load()
}

// Reload re-reads the file and swaps the template in if it parses.
func (f *TemplateFile) Reload() error {
	t, err := LoadTemplate(f.path)
	if err != nil {
		return err
	}
	f.current.Store(&t)
	return nil
}

// Watch blocks until ctx ends, reloading after writes to the file. The parent
// directory is watched so editors that replace the file are noticed too.
func (f *TemplateFile) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.path, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(f.debounce, func() {
				if err := f.Reload(); err != nil {
					log.Printf("template: reload of %s failed, keeping previous: %v", f.path, err)
					return
				}
				log.Printf("template: reloaded %s", f.path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Printf("template: watcher error: %v", err)
		}
	}
}

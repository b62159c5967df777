package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"speech-recognition-bridge/internal/observability/logging"
)

const reloadDebounce = 200 * time.Millisecond

// ErrNoLanguage is returned for a locale file without a language.
var ErrNoLanguage = errors.New("locale file has no language")

// localeFile is the YAML layout of the locale file.
type localeFile struct {
	Language string `yaml:"language"`
}

// Locale holds the configured recognition language. It is safe for
// concurrent use and may be reloaded from a file while sessions run.
type Locale struct {
	language atomic.Value // string
	path     string
	reloads  atomic.Uint32
	log      zerolog.Logger
}

// NewLocale returns a locale fixed to language.
func NewLocale(language string) *Locale {
	l := &Locale{log: logging.WithComponent("locale")}
	l.language.Store(language)
	return l
}

// LoadLocale returns a locale read from path, or fixed to fallback when path
// is empty.
func LoadLocale(path, fallback string) (*Locale, error) {
	l := NewLocale(fallback)
	if path == "" {
		return l, nil
	}
	l.path = path

	lang, err := readLocaleFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load locale: %w", err)
	}
	l.language.Store(lang)
	return l, nil
}

// Language returns the current language tag.
func (l *Locale) Language() string {
	return l.language.Load().(string)
}

// Set replaces the current language.
func (l *Locale) Set(language string) {
	l.language.Store(language)
}

// ReloadCount returns the number of successful reloads.
func (l *Locale) ReloadCount() uint32 {
	return l.reloads.Load()
}

// Watch reloads the locale file on change until ctx ends. The directory is
// watched so editors that replace the file are picked up. It returns
// immediately for a locale without a file.
func (l *Locale) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", l.path, err)
	}

	target := filepath.Clean(l.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Error().Err(err).Msg("Locale watcher error")
		}
	}
}

func (l *Locale) reload() {
	lang, err := readLocaleFile(l.path)
	if err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("Failed to reload locale, keeping current language")
		return
	}

	previous := l.Language()
	l.language.Store(lang)
	count := l.reloads.Add(1)
	l.log.Info().
		Str("previous", previous).
		Str("language", lang).
		Uint32("count", count).
		Msg("Locale reloaded")
}

func readLocaleFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var f localeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	lang := strings.TrimSpace(f.Language)
	if lang == "" {
		return "", fmt.Errorf("%w: %s", ErrNoLanguage, path)
	}
	return lang, nil
}

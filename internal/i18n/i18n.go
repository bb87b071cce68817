// Package i18n holds the session language and bilingual display text.
package i18n

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// Lang is a supported storefront language.
type Lang string

const (
	English Lang = "en"
	Arabic  Lang = "ar"
)

var supported = []language.Tag{language.English, language.Arabic}

var matcher = language.NewMatcher(supported)

// Tag returns the BCP 47 tag for l.
func (l Lang) Tag() language.Tag {
	if l == Arabic {
		return language.Arabic
	}
	return language.English
}

// Direction returns "rtl" or "ltr".
func (l Lang) Direction() string {
	if l == Arabic {
		return "rtl"
	}
	return "ltr"
}

// Other returns the alternate language.
func (l Lang) Other() Lang {
	if l == Arabic {
		return English
	}
	return Arabic
}

// Match picks the closest supported language for a locale such as
// "ar_KW.UTF-8" or "en-GB". Unknown input yields fallback.
func Match(raw string, fallback Lang) Lang {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ReplaceAll(raw, "_", "-")
	if raw == "" || raw == "C" || raw == "POSIX" {
		return fallback
	}

	tag, err := language.Parse(raw)
	if err != nil {
		return fallback
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return fallback
	}
	if supported[idx] == language.Arabic {
		return Arabic
	}
	return English
}

// Collator returns a collator for sorting display names in l.
func Collator(l Lang) *collate.Collator {
	return collate.New(l.Tag(), collate.IgnoreCase)
}

// ============================================
// Bilingual Text
// ============================================

// Text is a display string with English and Arabic variants.
type Text struct {
	En string `json:"en,omitempty"`
	Ar string `json:"ar,omitempty"`
}

// Pick returns the variant for l, falling back to the other variant.
func (t Text) Pick(l Lang) string {
	primary, secondary := t.En, t.Ar
	if l == Arabic {
		primary, secondary = t.Ar, t.En
	}
	if primary != "" {
		return primary
	}
	return secondary
}

// PickOr is Pick with a default for entirely empty text.
func (t Text) PickOr(l Lang, def string) string {
	if s := t.Pick(l); s != "" {
		return s
	}
	return def
}

// IsZero reports whether both variants are empty.
func (t Text) IsZero() bool {
	return t.En == "" && t.Ar == ""
}

// Matches reports whether s equals either variant.
func (t Text) Matches(s string) bool {
	return s != "" && (s == t.En || s == t.Ar)
}

// ============================================
// Language State
// ============================================

// State is the persisted session language.
type State struct {
	mu     sync.RWMutex
	lang   Lang
	store  storage.Store
	logger *log.Logger
}

// NewState restores the stored language, or uses def when none is stored.
func NewState(store storage.Store, def Lang, logger *log.Logger) *State {
	if logger == nil {
		logger = log.Default()
	}
	s := &State{lang: def, store: store, logger: logger.WithPrefix("i18n")}

	var saved Lang
	if err := storage.Load(store, storage.KeyLanguage, &saved); err == nil {
		if saved == English || saved == Arabic {
			s.lang = saved
		}
	}
	return s
}

// Lang returns the current language.
func (s *State) Lang() Lang {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// Set changes and persists the language. Unsupported values are ignored.
func (s *State) Set(l Lang) {
	if l != English && l != Arabic {
		return
	}
	s.mu.Lock()
	s.lang = l
	s.mu.Unlock()

	if err := storage.Save(s.store, storage.KeyLanguage, l); err != nil {
		s.logger.Warn("persisting language", "err", err)
	}
}

// Toggle switches between English and Arabic.
func (s *State) Toggle() Lang {
	next := s.Lang().Other()
	s.Set(next)
	return next
}

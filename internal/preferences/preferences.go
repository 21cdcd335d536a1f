// Package preferences holds per-user display and model settings and
// persists them through a key/value store.
package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"sentilytics/internal/alerts"
	"sentilytics/internal/analysis"
	"sentilytics/internal/core"
)

// Storage keys
const (
	KeyTheme         = "theme"
	KeyAccentColor   = "accentColor"
	KeyDefaultModels = "defaultModels"
)

// KV is an owner-scoped string store. store.Store and persistence.PostgresDB satisfy it.
type KV interface {
	Get(ctx context.Context, owner, key string) (string, bool, error)
	Set(ctx context.Context, owner, key, value string) error
	Delete(ctx context.Context, owner string, keys ...string) error
}

// Theme is the light/dark display mode
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts any casing and surrounding space. ok is false for
// anything other than light or dark.
func ParseTheme(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, true
	case ThemeDark:
		return ThemeDark, true
	}
	return "", false
}

// Opposite returns the other theme.
func (t Theme) Opposite() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// AccentColor overrides the theme's primary color.
type AccentColor struct {
	Name  string `json:"name"`
	Main  string `json:"main"`
	Hover string `json:"hover"`
	Glow  string `json:"glow"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks that the color is usable in a stylesheet.
func (a AccentColor) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("accent color name is required")
	}
	if !hexColor.MatchString(a.Main) {
		return fmt.Errorf("accent main color %q is not #rrggbb", a.Main)
	}
	if !hexColor.MatchString(a.Hover) {
		return fmt.Errorf("accent hover color %q is not #rrggbb", a.Hover)
	}
	if strings.TrimSpace(a.Glow) == "" {
		return fmt.Errorf("accent glow color is required")
	}
	return nil
}

// Palette is the set of accent colors offered in settings.
var Palette = []AccentColor{
	{Name: "Default Blue", Main: "#3b82f6", Hover: "#60a5fa", Glow: "rgba(59, 130, 246, 0.4)"},
	{Name: "Cyber Magenta", Main: "#f038d1", Hover: "#f76de0", Glow: "rgba(240, 56, 209, 0.4)"},
	{Name: "Emerald Green", Main: "#10b981", Hover: "#34d399", Glow: "rgba(16, 185, 129, 0.4)"},
	{Name: "Amber Orange", Main: "#f59e0b", Hover: "#fbbf24", Glow: "rgba(245, 158, 11, 0.4)"},
	{Name: "Violet Purple", Main: "#8b5cf6", Hover: "#a78bfa", Glow: "rgba(139, 92, 246, 0.4)"},
}

// LookupAccent finds a palette entry by name, ignoring case.
func LookupAccent(name string) (AccentColor, bool) {
	for _, c := range Palette {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return AccentColor{}, false
}

// SelectableModels lists the models offered for either class.
var SelectableModels = []string{analysis.DefaultProModel, analysis.DefaultFlashModel}

// ModelClass selects which default model a change applies to.
type ModelClass string

const (
	ModelPro   ModelClass = "pro"
	ModelFlash ModelClass = "flash"
)

// Preferences is the resolved state for one user.
type Preferences struct {
	Theme  Theme           `json:"theme"`
	Accent *AccentColor    `json:"accentColor"`
	Models analysis.Models `json:"defaultModels"`
}

// Manager loads, mutates and persists one owner's preferences. It is safe for
// concurrent use.
type Manager struct {
	kv       KV
	owner    string
	defaults analysis.Models
	notifier alerts.Notifier
	log      *slog.Logger

	mu    sync.RWMutex
	prefs Preferences
}

// NewManager creates a manager for owner. defaults are the models used until
// the user picks others; notifier receives the confirmation alerts (may be nil).
func NewManager(kv KV, owner string, defaults analysis.Models, notifier alerts.Notifier, log *slog.Logger) *Manager {
	if defaults.Pro == "" {
		defaults.Pro = analysis.DefaultProModel
	}
	if defaults.Flash == "" {
		defaults.Flash = analysis.DefaultFlashModel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		kv:       kv,
		owner:    owner,
		defaults: defaults,
		notifier: notifier,
		log:      log,
		prefs:    Preferences{Theme: ThemeDark, Models: defaults},
	}
}

// Load reads stored preferences. A missing or unreadable theme falls back to
// systemTheme. Accent and model values that fail to parse or validate are
// deleted and the defaults applied. Legacy theme spellings are rewritten in
// canonical form.
func (m *Manager) Load(ctx context.Context, systemTheme Theme) (Preferences, error) {
	if _, ok := ParseTheme(string(systemTheme)); !ok {
		systemTheme = ThemeDark
	}
	prefs := Preferences{Theme: systemTheme, Models: m.defaults}

	raw, ok, err := m.kv.Get(ctx, m.owner, KeyTheme)
	if err != nil {
		return m.Current(), err
	}
	if ok {
		if theme, valid := ParseTheme(raw); valid {
			prefs.Theme = theme
			if raw != string(theme) {
				m.log.Info("migrating stored theme", "owner", m.owner, "from", raw, "to", theme)
				if err := m.kv.Set(ctx, m.owner, KeyTheme, string(theme)); err != nil {
					return m.Current(), err
				}
			}
		} else {
			m.log.Warn("discarding invalid stored theme", "owner", m.owner, "value", raw)
			if err := m.kv.Delete(ctx, m.owner, KeyTheme); err != nil {
				return m.Current(), err
			}
		}
	}

	accent, err := m.loadAccent(ctx)
	if err != nil {
		return m.Current(), err
	}
	prefs.Accent = accent

	models, err := m.loadModels(ctx)
	if err != nil {
		return m.Current(), err
	}
	prefs.Models = models

	m.mu.Lock()
	m.prefs = prefs
	m.mu.Unlock()
	return prefs, nil
}

func (m *Manager) loadAccent(ctx context.Context) (*AccentColor, error) {
	raw, ok, err := m.kv.Get(ctx, m.owner, KeyAccentColor)
	if err != nil || !ok {
		return nil, err
	}
	var accent AccentColor
	if err := json.Unmarshal([]byte(raw), &accent); err == nil {
		if err = accent.Validate(); err == nil {
			return &accent, nil
		}
	}
	m.log.Warn("discarding invalid stored accent color", "owner", m.owner)
	return nil, m.kv.Delete(ctx, m.owner, KeyAccentColor)
}

func (m *Manager) loadModels(ctx context.Context) (analysis.Models, error) {
	raw, ok, err := m.kv.Get(ctx, m.owner, KeyDefaultModels)
	if err != nil || !ok {
		return m.defaults, err
	}
	var models analysis.Models
	if err := json.Unmarshal([]byte(raw), &models); err == nil {
		if m.AllowedModel(models.Pro) && m.AllowedModel(models.Flash) {
			return models, nil
		}
	}
	m.log.Warn("discarding invalid stored model selection", "owner", m.owner)
	return m.defaults, m.kv.Delete(ctx, m.owner, KeyDefaultModels)
}

// AllowedModel reports whether model may be selected as a default.
func (m *Manager) AllowedModel(model string) bool {
	if model == "" {
		return false
	}
	if model == m.defaults.Pro || model == m.defaults.Flash {
		return true
	}
	for _, s := range SelectableModels {
		if s == model {
			return true
		}
	}
	return false
}

// Current returns the in-memory preferences.
func (m *Manager) Current() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.prefs
	if p.Accent != nil {
		a := *p.Accent
		p.Accent = &a
	}
	return p
}

// ModelFor returns the model the user has chosen for kind.
func (m *Manager) ModelFor(kind core.AnalysisKind) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs.Models.For(kind)
}

// SetTheme stores theme.
func (m *Manager) SetTheme(ctx context.Context, theme Theme) error {
	t, ok := ParseTheme(string(theme))
	if !ok {
		return fmt.Errorf("invalid theme %q", theme)
	}
	if err := m.kv.Set(ctx, m.owner, KeyTheme, string(t)); err != nil {
		return err
	}
	m.mu.Lock()
	m.prefs.Theme = t
	m.mu.Unlock()
	return nil
}

// ToggleTheme switches between light and dark and returns the new theme.
func (m *Manager) ToggleTheme(ctx context.Context) (Theme, error) {
	next := m.Current().Theme.Opposite()
	if err := m.SetTheme(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

// SetAccentColor stores color and confirms with a success alert.
func (m *Manager) SetAccentColor(ctx context.Context, color AccentColor) error {
	if err := color.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(color)
	if err != nil {
		return fmt.Errorf("failed to encode accent color: %w", err)
	}
	if err := m.kv.Set(ctx, m.owner, KeyAccentColor, string(data)); err != nil {
		return err
	}
	m.mu.Lock()
	m.prefs.Accent = &color
	m.mu.Unlock()
	m.raise(fmt.Sprintf("Accent color set to %s!", color.Name), alerts.KindSuccess)
	return nil
}

// ResetAccentColor removes the accent override.
func (m *Manager) ResetAccentColor(ctx context.Context) error {
	if err := m.kv.Delete(ctx, m.owner, KeyAccentColor); err != nil {
		return err
	}
	m.mu.Lock()
	m.prefs.Accent = nil
	m.mu.Unlock()
	m.raise("Accent color reset to theme default.", alerts.KindInfo)
	return nil
}

// SetModelSelection changes the default model for one class.
func (m *Manager) SetModelSelection(ctx context.Context, class ModelClass, model string) error {
	if !m.AllowedModel(model) {
		return fmt.Errorf("unsupported model %q", model)
	}

	m.mu.RLock()
	models := m.prefs.Models
	m.mu.RUnlock()

	switch class {
	case ModelPro:
		models.Pro = model
	case ModelFlash:
		models.Flash = model
	default:
		return fmt.Errorf("unknown model class %q", class)
	}

	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to encode models: %w", err)
	}
	if err := m.kv.Set(ctx, m.owner, KeyDefaultModels, string(data)); err != nil {
		return err
	}
	m.mu.Lock()
	m.prefs.Models = models
	m.mu.Unlock()
	m.raise("Default model settings updated!", alerts.KindSuccess)
	return nil
}

// Clear deletes the stored model selection and accent color. The theme is kept.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.kv.Delete(ctx, m.owner, KeyDefaultModels, KeyAccentColor); err != nil {
		return err
	}
	m.mu.Lock()
	m.prefs.Models = m.defaults
	m.prefs.Accent = nil
	m.mu.Unlock()
	m.raise("Local application cache cleared!", alerts.KindInfo)
	return nil
}

func (m *Manager) raise(message string, kind alerts.Kind) {
	if m.notifier != nil {
		m.notifier.Raise(message, kind)
	}
}

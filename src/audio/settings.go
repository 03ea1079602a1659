package audio

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ServerSettings are the per-server overrides of the global settings.
type ServerSettings struct {
	Volume        float64
	QueueMode     bool
	VoteThreshold int
}

// Settings are the audio settings shared by every server.
type Settings struct {
	Volume        float64
	MaxLength     int // seconds
	QueueMode     bool
	MaxCache      int // MB, 0 = auto
	TitleStatus   bool
	Avconv        bool
	VoteThreshold int
	Servers       map[snowflake.ID]ServerSettings
}

func DefaultSettings() Settings {
	return Settings{
		Volume:        50,
		MaxLength:     3700,
		QueueMode:     true,
		MaxCache:      0,
		TitleStatus:   true,
		Avconv:        false,
		VoteThreshold: 50,
		Servers:       map[snowflake.ID]ServerSettings{},
	}
}

func (s Settings) clone() Settings {
	s.Servers = maps.Clone(s.Servers)
	if s.Servers == nil {
		s.Servers = map[snowflake.ID]ServerSettings{}
	}
	return s
}

// MaxDuration is MaxLength as a duration; zero disables the check.
func (s Settings) MaxDuration() time.Duration {
	return time.Duration(s.MaxLength) * time.Second
}

// SettingsStore persists Settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// SettingsManager caches the settings in memory and writes every change
// through to the store.
type SettingsManager struct {
	store  SettingsStore
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewSettingsManager loads the stored settings. A nil store keeps them in
// memory only.
func NewSettingsManager(ctx context.Context, store SettingsStore, logger *slog.Logger) (*SettingsManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &SettingsManager{store: store, logger: logger, settings: DefaultSettings()}
	if store == nil {
		return m, nil
	}
	s, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio settings: %w", err)
	}
	m.settings = s.clone()
	return m, nil
}

func (m *SettingsManager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.clone()
}

func (m *SettingsManager) MaxCacheMB() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.MaxCache
}

// Server returns the server's settings, creating the entry from the global
// values on first use. A legacy global volume in the 0..1 range is scaled to
// 0..100 when it is copied.
func (m *SettingsManager) Server(ctx context.Context, server snowflake.ID) ServerSettings {
	m.mu.Lock()
	ss, ok := m.settings.Servers[server]
	if ok {
		m.mu.Unlock()
		return ss
	}
	ss = ServerSettings{
		Volume:        m.settings.Volume,
		QueueMode:     m.settings.QueueMode,
		VoteThreshold: m.settings.VoteThreshold,
	}
	if ss.Volume <= 1 {
		ss.Volume *= 100
	}
	if m.settings.Servers == nil {
		m.settings.Servers = map[snowflake.ID]ServerSettings{}
	}
	m.settings.Servers[server] = ss
	snapshot := m.settings.clone()
	m.mu.Unlock()

	m.save(ctx, snapshot)
	return ss
}

// Update applies fn to the global settings and persists the result.
func (m *SettingsManager) Update(ctx context.Context, fn func(*Settings)) (Settings, error) {
	m.mu.Lock()
	next := m.settings.clone()
	fn(&next)
	m.settings = next
	snapshot := next.clone()
	m.mu.Unlock()

	return snapshot, m.persist(ctx, snapshot)
}

// UpdateServer applies fn to one server's settings and persists the result.
func (m *SettingsManager) UpdateServer(ctx context.Context, server snowflake.ID, fn func(*ServerSettings)) (ServerSettings, error) {
	ss := m.Server(ctx, server)
	fn(&ss)

	m.mu.Lock()
	m.settings.Servers[server] = ss
	snapshot := m.settings.clone()
	m.mu.Unlock()

	return ss, m.persist(ctx, snapshot)
}

func (m *SettingsManager) persist(ctx context.Context, s Settings) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("failed to save audio settings: %w", err)
	}
	return nil
}

func (m *SettingsManager) save(ctx context.Context, s Settings) {
	if err := m.persist(ctx, s); err != nil {
		m.logger.Warn(err.Error())
	}
}

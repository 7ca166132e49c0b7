package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// Setting keys
const (
	KeyDownloadDirectory    = "download_directory"
	KeyTheme                = "theme"
	KeyDownloadMode         = "download_mode"
	KeySubtitleDownload     = "subtitle_download"
	KeyNotificationsEnabled = "notifications_enabled"
	KeyAutoResume           = "auto_resume"
	KeyDebugThreadSafety    = "debug_thread_safety"
	KeyProxyEnabled         = "proxy_enabled"
	KeyProxyHost            = "proxy_host"
	KeyProxyPort            = "proxy_port"
	KeyExtractAudio         = "extract_audio"
	KeyAudioFormat          = "audio_format"
	KeyEmbedThumbnail       = "embed_thumbnail"
	KeyEmbedMetadata        = "embed_metadata"
	KeyCookiesPath          = "cookies_path"
	KeyYTDLPBinary          = "ytdlp_binary"
)

// Theme values
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Download modes
const (
	ModeSequential    = "sequential"
	ModeMultiThreaded = "multi-threaded"
)

// Publisher is the event sink change notifications go to
type Publisher interface {
	Publish(event domain.Event) bool
}

// Store is the process-wide configuration cell. Reads return copies; every
// change is persisted to the settings file and announced on the bus.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
	bus  Publisher
	log  *zap.Logger
}

func defaults() map[string]interface{} {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return map[string]interface{}{
		KeyDownloadDirectory:    filepath.Join(home, "Downloads", "Klyp"),
		KeyTheme:                ThemeDark,
		KeyDownloadMode:         ModeSequential,
		KeySubtitleDownload:     false,
		KeyNotificationsEnabled: true,
		KeyAutoResume:           true,
		KeyDebugThreadSafety:    false,
		KeyProxyEnabled:         false,
		KeyProxyHost:            "",
		KeyProxyPort:            "",
		KeyExtractAudio:         false,
		KeyAudioFormat:          "mp3",
		KeyEmbedThumbnail:       false,
		KeyEmbedMetadata:        false,
		KeyCookiesPath:          "",
		KeyYTDLPBinary:          "yt-dlp",
	}
}

// DefaultPath returns the settings file under the user config base
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "klyp", "settings.json"), nil
}

// NewStore loads settings from path, falling back to defaults for missing
// keys. Unknown keys found in the file are kept and written back on save.
func NewStore(path string, bus Publisher, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigParseError); ok {
			log.Warn("settings file corrupt, using defaults", zap.Error(err))
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	return &Store{v: v, path: path, bus: bus, log: log}, nil
}

// Get returns the value for key, or nil for unknown keys
func (s *Store) Get(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.Get(key)
}

// GetString returns a string setting
func (s *Store) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(key)
}

// GetBool returns a boolean setting
func (s *Store) GetBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(key)
}

// Snapshot returns a copy of every setting
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range s.v.AllSettings() {
		out[key] = value
	}
	return out
}

// Set validates and stores a value, persists the snapshot, and publishes a
// SettingsChanged event when the stored value actually changed.
func (s *Store) Set(key string, value interface{}) error {
	if err := validate(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.setLocked(key, value)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.publishChanged([]string{key}, snapshot)
	}
	return nil
}

// setLocked stores and persists one key. Returns whether the value changed.
// Persistence failure keeps the in-memory update and is only logged.
func (s *Store) setLocked(key string, value interface{}) bool {
	if s.v.Get(key) == value {
		return false
	}
	s.v.Set(key, value)
	if err := s.persistLocked(); err != nil {
		s.log.Error("failed to persist settings",
			zap.String("key", key),
			zap.Error(err))
	}
	return true
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return s.v.WriteConfigAs(s.path)
}

// GetDownloadDirectory returns the configured download directory
func (s *Store) GetDownloadDirectory() string {
	return s.GetString(KeyDownloadDirectory)
}

// SetTheme validates and sets the theme
func (s *Store) SetTheme(theme string) error {
	return s.Set(KeyTheme, theme)
}

// SetDownloadMode validates and sets the download mode
func (s *Store) SetDownloadMode(mode string) error {
	return s.Set(KeyDownloadMode, mode)
}

// ResetToDefaults restores every known key to its default value
func (s *Store) ResetToDefaults() {
	s.mu.Lock()
	var changedKeys []string
	for key, value := range defaults() {
		if s.v.Get(key) != value {
			s.v.Set(key, value)
			changedKeys = append(changedKeys, key)
		}
	}
	if err := s.persistLocked(); err != nil {
		s.log.Error("failed to persist settings", zap.Error(err))
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if len(changedKeys) > 0 {
		sort.Strings(changedKeys)
		s.publishChanged(changedKeys, snapshot)
	}
}

func (s *Store) publishChanged(keys []string, snapshot map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.NewEvent(domain.EventSettingsChanged, domain.SettingsChangedPayload{
		ChangedKeys: keys,
		Settings:    snapshot,
	}))
}

func validate(key string, value interface{}) error {
	switch key {
	case KeyTheme:
		v, ok := value.(string)
		if !ok || (v != ThemeDark && v != ThemeLight) {
			return fmt.Errorf("theme must be %q or %q", ThemeDark, ThemeLight)
		}
	case KeyDownloadMode:
		v, ok := value.(string)
		if !ok || (v != ModeSequential && v != ModeMultiThreaded) {
			return fmt.Errorf("download mode must be %q or %q", ModeSequential, ModeMultiThreaded)
		}
	case KeySubtitleDownload, KeyNotificationsEnabled, KeyAutoResume,
		KeyDebugThreadSafety, KeyProxyEnabled, KeyExtractAudio,
		KeyEmbedThumbnail, KeyEmbedMetadata:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", key)
		}
	case KeyDownloadDirectory, KeyProxyHost, KeyProxyPort, KeyAudioFormat,
		KeyCookiesPath, KeyYTDLPBinary:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s must be a string", key)
		}
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

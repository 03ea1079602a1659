package sys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/mattn/go-sqlite3"
)

// --- Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	db, err := OpenDatabase(ctx, dataSourceName)
	if err != nil {
		return err
	}
	DB = db
	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

// OpenDatabase opens a sqlite database and creates the schema.
func OpenDatabase(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	// The driver registers itself in its init function.
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := db.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audio_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audio_server_settings (
			guild_id TEXT PRIMARY KEY,
			volume REAL NOT NULL,
			queue_mode INTEGER NOT NULL,
			vote_threshold INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audio_playlists (
			guild_id TEXT NOT NULL,
			name TEXT NOT NULL,
			author_id TEXT NOT NULL,
			urls TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, name)
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	return tx.Commit()
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	return getConfig(ctx, DB, key)
}

func SetBotConfig(ctx context.Context, key, value string) error {
	return setConfig(ctx, DB, key, value)
}

func getConfig(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func setConfig(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Audio Persistence ---

// Keys of the audio_settings table. They match the legacy settings.json
// layout so an imported file maps one to one.
const (
	settingVolume        = "VOLUME"
	settingMaxLength     = "MAX_LENGTH"
	settingQueueMode     = "QUEUE_MODE"
	settingMaxCache      = "MAX_CACHE"
	settingTitleStatus   = "TITLE_STATUS"
	settingAvconv        = "AVCONV"
	settingVoteThreshold = "VOTE_THRESHOLD"

	configSettingsImported = "audio_settings_imported"
)

// AudioStore keeps the audio settings and saved playlists in sqlite. It
// implements audio.SettingsStore and audio.PlaylistStore.
type AudioStore struct {
	db *sql.DB
}

func NewAudioStore(db *sql.DB) *AudioStore {
	return &AudioStore{db: db}
}

var (
	_ audio.SettingsStore = (*AudioStore)(nil)
	_ audio.PlaylistStore = (*AudioStore)(nil)
)

func (s *AudioStore) LoadSettings(ctx context.Context) (audio.Settings, error) {
	out := audio.DefaultSettings()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM audio_settings")
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return out, err
		}
		if err := applySetting(&out, key, value); err != nil {
			LogWarn(MsgAudioSettingIgnored, key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	srows, err := s.db.QueryContext(ctx, "SELECT guild_id, volume, queue_mode, vote_threshold FROM audio_server_settings")
	if err != nil {
		return out, err
	}
	defer srows.Close()

	for srows.Next() {
		var (
			guildStr string
			ss       audio.ServerSettings
			queue    int
		)
		if err := srows.Scan(&guildStr, &ss.Volume, &queue, &ss.VoteThreshold); err != nil {
			return out, err
		}
		guildID, err := snowflake.Parse(guildStr)
		if err != nil {
			continue
		}
		ss.QueueMode = queue != 0
		out.Servers[guildID] = ss
	}
	return out, srows.Err()
}

func applySetting(s *audio.Settings, key, value string) error {
	var err error
	switch key {
	case settingVolume:
		s.Volume, err = strconv.ParseFloat(value, 64)
	case settingMaxLength:
		s.MaxLength, err = strconv.Atoi(value)
	case settingQueueMode:
		s.QueueMode, err = strconv.ParseBool(value)
	case settingMaxCache:
		s.MaxCache, err = strconv.Atoi(value)
	case settingTitleStatus:
		s.TitleStatus, err = strconv.ParseBool(value)
	case settingAvconv:
		s.Avconv, err = strconv.ParseBool(value)
	case settingVoteThreshold:
		s.VoteThreshold, err = strconv.Atoi(value)
	}
	return err
}

// SaveSettings replaces every stored setting with s in one transaction.
func (s *AudioStore) SaveSettings(ctx context.Context, settings audio.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		settingVolume:        strconv.FormatFloat(settings.Volume, 'f', -1, 64),
		settingMaxLength:     strconv.Itoa(settings.MaxLength),
		settingQueueMode:     strconv.FormatBool(settings.QueueMode),
		settingMaxCache:      strconv.Itoa(settings.MaxCache),
		settingTitleStatus:   strconv.FormatBool(settings.TitleStatus),
		settingAvconv:        strconv.FormatBool(settings.Avconv),
		settingVoteThreshold: strconv.Itoa(settings.VoteThreshold),
	}
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audio_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM audio_server_settings"); err != nil {
		return err
	}
	for guildID, ss := range settings.Servers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audio_server_settings (guild_id, volume, queue_mode, vote_threshold)
			VALUES (?, ?, ?, ?)
		`, guildID.String(), ss.Volume, boolToInt(ss.QueueMode), ss.VoteThreshold); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *AudioStore) SavePlaylist(ctx context.Context, p audio.Playlist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_playlists (guild_id, name, author_id, urls) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, name) DO UPDATE SET
			author_id = excluded.author_id,
			urls = excluded.urls,
			updated_at = CURRENT_TIMESTAMP
	`, p.GuildID.String(), p.Name, p.AuthorID.String(), strings.Join(p.URLs, "\n"))
	return err
}

func (s *AudioStore) GetPlaylist(ctx context.Context, guildID snowflake.ID, name string) (audio.Playlist, error) {
	var authorStr, urls string
	err := s.db.QueryRowContext(ctx,
		"SELECT author_id, urls FROM audio_playlists WHERE guild_id = ? AND name = ?",
		guildID.String(), name,
	).Scan(&authorStr, &urls)
	if errors.Is(err, sql.ErrNoRows) {
		return audio.Playlist{}, audio.ErrPlaylistNotFound
	}
	if err != nil {
		return audio.Playlist{}, err
	}

	p := audio.Playlist{GuildID: guildID, Name: name}
	p.AuthorID, _ = snowflake.Parse(authorStr)
	if urls != "" {
		p.URLs = strings.Split(urls, "\n")
	}
	return p, nil
}

func (s *AudioStore) DeletePlaylist(ctx context.Context, guildID snowflake.ID, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audio_playlists WHERE guild_id = ? AND name = ?", guildID.String(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return audio.ErrPlaylistNotFound
	}
	return nil
}

func (s *AudioStore) ListPlaylists(ctx context.Context, guildID snowflake.ID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM audio_playlists WHERE guild_id = ? ORDER BY name", guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// --- Legacy Import ---

type legacyServerSettings struct {
	Volume        *float64 `json:"VOLUME"`
	QueueMode     *bool    `json:"QUEUE_MODE"`
	VoteThreshold *int     `json:"VOTE_THRESHOLD"`
}

type legacySettings struct {
	Volume        *float64                        `json:"VOLUME"`
	MaxLength     *int                            `json:"MAX_LENGTH"`
	QueueMode     *bool                           `json:"QUEUE_MODE"`
	MaxCache      *int                            `json:"MAX_CACHE"`
	TitleStatus   *bool                           `json:"TITLE_STATUS"`
	Avconv        *bool                           `json:"AVCONV"`
	VoteThreshold *int                            `json:"VOTE_THRESHOLD"`
	Servers       map[string]legacyServerSettings `json:"SERVERS"`
}

// ImportLegacySettings loads a settings.json written by the previous bot and
// stores it, once. Missing keys keep their defaults and per-server entries
// inherit the global values. It reports whether anything was imported.
func (s *AudioStore) ImportLegacySettings(ctx context.Context, path string) (bool, error) {
	done, err := getConfig(ctx, s.db, configSettingsImported)
	if err != nil {
		return false, err
	}
	if done != "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read legacy settings: %w", err)
	}

	var legacy legacySettings
	if err := json.Unmarshal(data, &legacy); err != nil {
		return false, fmt.Errorf("failed to parse legacy settings: %w", err)
	}

	out := legacy.toSettings()
	if err := s.SaveSettings(ctx, out); err != nil {
		return false, err
	}
	if err := setConfig(ctx, s.db, configSettingsImported, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, err
	}
	LogDatabase(MsgAudioSettingsImported, path, len(out.Servers))
	return true, nil
}

func (l legacySettings) toSettings() audio.Settings {
	out := audio.DefaultSettings()
	setIf(&out.Volume, l.Volume)
	setIf(&out.MaxLength, l.MaxLength)
	setIf(&out.QueueMode, l.QueueMode)
	setIf(&out.MaxCache, l.MaxCache)
	setIf(&out.TitleStatus, l.TitleStatus)
	setIf(&out.Avconv, l.Avconv)
	setIf(&out.VoteThreshold, l.VoteThreshold)

	for idStr, ls := range l.Servers {
		guildID, err := snowflake.Parse(idStr)
		if err != nil {
			continue
		}
		ss := audio.ServerSettings{
			Volume:        out.Volume,
			QueueMode:     out.QueueMode,
			VoteThreshold: out.VoteThreshold,
		}
		setIf(&ss.Volume, ls.Volume)
		setIf(&ss.QueueMode, ls.QueueMode)
		setIf(&ss.VoteThreshold, ls.VoteThreshold)
		out.Servers[guildID] = ss
	}
	return out
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

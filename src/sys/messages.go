package sys

// ===========================
// Core
// ===========================

const (
	MsgConfigFailedToLoad    = "Failed to load config: %v"
	MsgConfigMissingToken    = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess   = "Database initialized successfully"
	MsgDatabaseTableError    = "Failed to create table: %w"
	MsgDatabasePragmaError   = "Failed to set pragma %s: %w"
	MsgDaemonStarting        = "Starting..."
	MsgDaemonShutdown        = "Shutting down all daemons..."
	MsgDaemonShutdownTimeout = "Daemon shutdown timed out, exiting anyway"
	MsgBotStarting           = "Starting %s..."
	MsgBotReady              = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown           = "Shutting down %s..."
	MsgBotKillingOld         = "Killing running instance... (PID: %d)"
	MsgBotStubbornOld        = "Old process %d is stubborn. Sending SIGKILL..."
	MsgBotOldSurvived        = "Process %d still exists after SIGKILL"
	MsgBotOldTerminated      = "Old instance terminated."
	MsgBotPIDOpenFail        = "Failed to open PID file: %v"
	MsgBotPIDLockFail        = "Failed to lock PID file: %v"
	MsgBotDatabaseFail       = "Failed to initialize database: %v"
	MsgBotRegisterFail       = "Command registration failed: %v"
	MsgBotSkipRegistration   = "Skipping command registration as requested."
	MsgGenericError          = "%v"
)

// ===========================
// Loader
// ===========================

const (
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "Commands unchanged (hash %s), skipping sync."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"
)

// ===========================
// Voice
// ===========================

const (
	MsgVoiceJoining            = "Joining channel %s in guild %s"
	MsgVoiceRetrying           = "Voice connect failed, retrying in %s (attempt %d/%d)"
	MsgVoiceJoinFailed         = "Failed to join voice in guild %s: %v"
	MsgVoiceLeaving            = "Leaving voice in guild %s"
	MsgVoiceExternalDisconnect = "Disconnected from voice in guild %s by someone else"
	MsgVoiceMoved              = "Moved from channel %s to %s in guild %s"
	MsgVoiceTranscodeFailed    = "Transcoding %s failed: %v"
	MsgVoiceTranscoderPanic    = "Transcoder panic: %v"
)

// ===========================
// Audio (logs)
// ===========================

const (
	MsgAudioStartFailed         = "Failed to start the audio player: %v"
	MsgAudioShuttingDown        = "Stopping playback and leaving voice channels..."
	MsgAudioImportFailed        = "Failed to import legacy audio settings: %v"
	MsgAudioSettingIgnored      = "Ignoring audio setting %s: %v"
	MsgAudioSettingsImported    = "Imported legacy audio settings from %s (%d servers)"
	MsgAudioSettingsSaveFailed  = "Failed to save audio settings: %v"
	MsgAudioPlayRequested       = "User %s (%s) requested playback: %s"
	MsgAudioUnknownSubcommand   = "Unknown audio subcommand: %s"
	MsgAudioRespondError        = "Failed to respond to interaction: %v"
	MsgAudioAutocompleteFailed  = "Failed to list playlists for autocomplete: %v"
	MsgAudioLocalListFailed     = "Failed to list local playlists: %v"
	MsgAudioPlaylistListFailed  = "Failed to list saved playlists: %v"
	MsgAudioNaturalTimeInitFail = "Failed to initialize naturaltime parser: %v"
	MsgPresenceUpdateFail       = "Failed to update presence: %v"
	MsgPresenceRotated          = "Presence: %s"
)

// ===========================
// Audio (user facing)
// ===========================

const (
	MsgAudioNotReady            = "Audio is still starting up, try again in a moment."
	MsgAudioAuthorNotConnected  = "You need to be in a voice channel first."
	MsgAudioCannotConnect       = "I don't have permission to join your voice channel."
	MsgAudioCannotSpeak         = "I don't have permission to speak in your voice channel."
	MsgAudioAlreadyDownloading  = "Already downloading a song, try again once it starts."
	MsgAudioInvalidLocator      = "That doesn't look like a YouTube or SoundCloud link."
	MsgAudioInvalidPlaylist     = "That isn't a YouTube or SoundCloud playlist."
	MsgAudioInvalidPlaylistName = "Playlist names may only contain letters, digits and `_`."
	MsgAudioPlaylistNotFound    = "No playlist with that name."
	MsgAudioPlaylistNotOwner    = "That playlist belongs to someone else."
	MsgAudioConnectTimeout      = "Timed out connecting to the voice channel."
	MsgAudioNotConnected        = "I'm not connected to a voice channel."
	MsgAudioResolutionFailed    = "Couldn't find anything playable for that."
	MsgAudioTooLong             = "That song is too long (%s, the limit is %s)."
	MsgAudioUnexpectedError     = "Something went wrong.\n> _%v_"

	MsgAudioPlayStarted      = "Now playing %s"
	MsgAudioQueued           = "Added **%d** to the queue: %s"
	MsgAudioPlaylistStarted  = "Playing playlist **%s** (%d songs, repeat on)"
	MsgAudioSkipped          = "Skipped."
	MsgAudioPaused           = "Paused."
	MsgAudioResumed          = "Resumed."
	MsgAudioStopped          = "Stopped and left the voice channel."
	MsgAudioRepeatOn         = "Repeat is on."
	MsgAudioRepeatOff        = "Repeat is off."
	MsgAudioShuffled         = "Shuffled the queue."
	MsgAudioNothingPlaying   = "Nothing is playing."
	MsgAudioNothingPaused    = "Nothing is paused."
	MsgAudioNothingToShuffle = "The queue is too short to shuffle."
	MsgAudioQueueEmpty       = "The queue is empty."

	MsgAudioNowPlayingHeader   = "## Now Playing\n**%s**\n"
	MsgAudioNowPlayingUploader = "> Uploader: %s\n"
	MsgAudioNowPlayingDuration = "> Length: `%s`\n"
	MsgAudioNowPlayingState    = "> State: %s\n"
	MsgAudioNowPlayingPlaylist = "> Playlist: **%s**\n"
	MsgAudioNowPlayingRepeat   = "> Repeat: on\n"

	MsgAudioQueueHeader     = "## Queue (%d)\n"
	MsgAudioQueueNowPlaying = "Now playing: **%s**\n\n"
	MsgAudioListMore        = "> ...and %d more.\n"

	MsgAudioLocalsHeader     = "## Local Playlists (%d)\n"
	MsgAudioNoLocalPlaylists = "There are no local playlists."
	MsgAudioPlaylistsHeader  = "## Saved Playlists (%d)\n"
	MsgAudioNoPlaylists      = "This server has no saved playlists. Save one with `/audio playlist-save`!"
	MsgAudioPlaylistSaved    = "Saved playlist **%s** (%d songs)."
	MsgAudioPlaylistDeleted  = "Deleted playlist **%s**."

	MsgAudioSleepSet         = "Stopping at <t:%d:t> (<t:%d:R>)."
	MsgAudioSleepCancelled   = "Sleep timer cancelled."
	MsgAudioNoSleep          = "There is no sleep timer."
	MsgAudioSleepParseFailed = "I couldn't understand that time. Try `in 30 minutes` or `1h`."

	MsgAudioCacheStatus = "## Audio Cache\n> Size: %s\n> Floor: %s\n> Budget: %s"

	MsgAudioSetOutOfRange    = "Value must be between %d and %d."
	MsgAudioSetNegative      = "Value must not be negative."
	MsgAudioSetVolume        = "Volume set to **%d%%** for %s."
	MsgAudioSetMaxLength     = "Maximum song length set to **%s**."
	MsgAudioSetMaxCache      = "Cache budget is now **%s**."
	MsgAudioSetQueueMode     = "Queue mode **%s** for %s."
	MsgAudioSetVoteThreshold = "Vote threshold set to **%d%%** for %s."
	MsgAudioSetTitleStatus   = "Title status **%s**."
	MsgAudioSetPresence      = "Presence activity **%s**."
	MsgAudioSettingsNotSaved = "Failed to save the settings."
	MsgAudioSettingsHeader   = "## Audio Settings\n"
	MsgAudioSettingsServer   = "**This server**\n> Volume: %.0f%%\n> Queue mode: %s\n> Vote threshold: %d%%"
	MsgAudioSettingsGlobal   = "**Global**\n> Volume: %.0f%%\n> Max length: %s\n> Max cache: %s (effective %s)\n> Title status: %s"
)

package audio

// Log messages
const (
	// Scheduler
	msgAdvancePanic       = "advance panic in server %s: %v\n%s"
	msgNowPlaying         = "Now playing %s (%s) in server %s"
	msgSkippingTooLong    = "Skipping %s in server %s: %v"
	msgDroppedStale       = "Dropped stale result for %s in server %s"
	msgFailedToPlay       = "Failed to play %s in server %s: %v"
	msgIdleDisconnect     = "Disconnecting from server %s after %s idle"
	msgIdleDisconnectFail = "Idle disconnect failed for server %s: %v"
	msgCacheTooLarge      = "Cache too large (%.1f > %.1f MB), dumping"

	// Player
	msgLeaveChannelFail   = "Failed to leave channel %s in server %s: %v"
	msgPlaylistSetup      = "Setting up playlist %q on server %s"
	msgSleepFired         = "Sleep timer fired for server %s"
	msgSleepDisconnectErr = "Sleep timer disconnect failed for server %s: %v"
	msgMutedPausing       = "Muted in server %s, pausing"
	msgUnmutedResuming    = "Unmuted in server %s, resuming"
	msgVoiceStatusFail    = "Failed to set voice status in %s: %v"

	// Controller
	msgRejoining     = "Not connected in server %s, rejoining %s"
	msgStaleChannel  = "Stored channel for server %s is stale, adopting %s"
	msgRejoinDropped = "Left %s in server %s again, playback was stopped while rejoining"

	// Coordinator
	msgPrefetchTimeout = "Prefetch of %s timed out after %s"
	msgPrefetching     = "Prefetching %s (%s) for server %s"

	// Cache and fetcher
	msgCacheListFail = "Failed to list cache dir %s: %v"
	msgCacheEvictAll = "Cache still too large, evicting desired files"
	msgCacheDumped   = "Dumped %s of audio files"
	msgCacheHit      = "Cache hit on song id %s"
	msgCacheMiss     = "Cache miss on song id %s"
)

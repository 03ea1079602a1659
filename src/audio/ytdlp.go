package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const (
	audioFormat          = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"
	defaultPlaylistLimit = 500
	infoTemplate         = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(url)s"
	playlistTemplate     = "%(url)s\t%(id)s"
)

// YtdlpProvider resolves and downloads media with yt-dlp. Free text search
// goes through the YouTube search scraper first and YouTube Music second.
type YtdlpProvider struct {
	Proxy         string
	PlaylistLimit int
	Logger        *slog.Logger
}

func NewYtdlpProvider(proxy string, logger *slog.Logger) *YtdlpProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &YtdlpProvider{Proxy: proxy, PlaylistLimit: defaultPlaylistLimit, Logger: logger}
}

func (p *YtdlpProvider) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()
	if p.Proxy != "" {
		cmd.Proxy(p.Proxy)
	}
	return cmd
}

func baseArgs() []string {
	return []string{
		"--no-check-certificates",
		"--socket-timeout", "30",
		"--retries", "10",
	}
}

func (p *YtdlpProvider) Search(ctx context.Context, query string) (string, error) {
	r, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err == nil {
		for _, v := range r.Results {
			if v.VideoID != "" {
				return v.VideoID, nil
			}
		}
	} else {
		p.Logger.Debug(fmt.Sprintf("YouTube search failed for %q: %v", query, err))
	}

	tr, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	for _, v := range tr.Tracks {
		if v.VideoID != "" {
			return v.VideoID, nil
		}
	}
	return "", nil
}

func (p *YtdlpProvider) Info(ctx context.Context, url string) (Song, error) {
	url = strings.Replace(url, "music.youtube.com", "www.youtube.com", 1)
	args := append(baseArgs(), "--no-playlist", "--skip-download", "-f", audioFormat, url)
	res, err := p.command().
		Print(infoTemplate).
		IgnoreConfig().
		Run(ctx, args...)
	if err != nil {
		if res != nil {
			p.Logger.Debug(fmt.Sprintf("yt-dlp info failed for %s: %s", url, strings.TrimSpace(res.Stderr)))
		}
		return Song{}, err
	}
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if song, ok := parseInfoLine(l); ok {
			return song, nil
		}
	}
	return Song{}, errors.New("failed to parse yt-dlp metadata")
}

func (p *YtdlpProvider) Download(ctx context.Context, song Song, dest string) error {
	url := song.WebpageURL
	if url == "" {
		url = song.URL
	}
	res, err := p.command().
		Format(audioFormat).
		Output(dest).
		NoPart().
		NoPlaylist().
		IgnoreConfig().
		Run(ctx, append(baseArgs(), "--force-overwrites", url)...)
	if err != nil {
		if res != nil {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return err
	}
	return nil
}

func (p *YtdlpProvider) Playlist(ctx context.Context, url string) ([]string, error) {
	limit := p.PlaylistLimit
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}
	res, err := p.command().
		FlatPlaylist().
		Print(playlistTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		IgnoreConfig().
		Run(ctx, append(baseArgs(), url, "--yes-playlist")...)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("yt-dlp playlist failed: %w, stderr: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, err
	}
	return parsePlaylistLines(res.Stdout, IsYouTubeURL(url)), nil
}

// parseInfoLine reads one line printed with infoTemplate.
func parseInfoLine(l string) (Song, bool) {
	ps := strings.Split(strings.TrimSpace(l), "\t")
	if len(ps) < 6 || ps[0] == "" || ps[0] == "NA" {
		return Song{}, false
	}
	d, _ := time.ParseDuration(ps[3] + "s")
	song := Song{
		ID:         ps[0],
		Title:      naToEmpty(ps[1]),
		Uploader:   naToEmpty(ps[2]),
		Duration:   d,
		WebpageURL: naToEmpty(ps[4]),
		URL:        naToEmpty(ps[5]),
	}
	return song, true
}

// parsePlaylistLines reads flat playlist output. YouTube entries are
// rebuilt from their id so they are canonical watch urls.
func parsePlaylistLines(out string, youtube bool) []string {
	var urls []string
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(strings.TrimSpace(l), "\t")
		if len(ps) == 0 || ps[0] == "" {
			continue
		}
		u := naToEmpty(ps[0])
		if youtube && len(ps) >= 2 && naToEmpty(ps[1]) != "" {
			u = "https://www.youtube.com/watch?v=" + ps[1]
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func naToEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

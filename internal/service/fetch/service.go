package fetch

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// formatPart matches yt-dlp's per-format intermediates such as "x.f137.mp4".
var formatPart = regexp.MustCompile(`\.f[0-9]+\.[A-Za-z0-9]+$`)

const (
	videoSelector = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/bestvideo+bestaudio/best"
	audioSelector = "bestaudio/best"

	retries    = 3
	retrySleep = 5
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Metadata describes a fetched media file.
type Metadata struct {
	Title           string
	Uploader        string
	DurationSeconds float64
	ByteSize        int64
}

// Media is a file fetched into the output directory. The caller owns and removes it.
type Media struct {
	Path     string
	Metadata Metadata
}

type mediaInfo struct {
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	Ext      string  `json:"ext"`
}

// Service fetches remote media through the yt-dlp binary.
type Service struct {
	binary    string
	outputDir string
	runner    Runner
	sem       *semaphore.Weighted
	mergeMP4  bool
}

// NewService creates a fetcher running at most maxConcurrent yt-dlp processes.
func NewService(binary, outputDir string, maxConcurrent int) *Service {
	_, ffmpegErr := exec.LookPath("ffmpeg")
	if ffmpegErr != nil {
		log.Warn().Msg("ffmpeg not found; video and audio streams will not be merged into mp4")
	}
	return &Service{
		binary:    binary,
		outputDir: outputDir,
		runner:    execRunner{},
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		mergeMP4:  ffmpegErr == nil,
	}
}

// Fetch downloads url in the requested format. Failures are FETCH_FAILURE AppErrors whose
// message is safe to show to the user.
func (s *Service) Fetch(ctx context.Context, url string, format Format, userID int64) (*Media, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.NewFetchFailure(err, "Download cancelled.")
	}
	defer s.sem.Release(1)

	start := time.Now()
	media, err := s.fetch(ctx, url, format, userID)
	metrics.Get().ObserveFetch(string(format), err == nil, time.Since(start))
	return media, err
}

func (s *Service) fetch(ctx context.Context, url string, format Format, userID int64) (_ *Media, err error) {
	logger := log.With().Int64("user_id", userID).Str("url", url).Str("format", string(format)).Logger()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, apperrors.NewFetchFailure(err, "Unexpected error preparing download.")
	}

	info, err := s.describe(ctx, url)
	if err != nil {
		return nil, err
	}

	title := info.Title
	if title == "" {
		title = "media"
	}
	base := strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + "_" + SanitizeFilename(title)
	defer func() {
		if err != nil {
			s.removeLeftovers(base)
		}
	}()

	args := []string{
		"--no-playlist", "--no-warnings", "--no-progress",
		"--user-agent", userAgent,
		"--retries", strconv.Itoa(retries),
		"--fragment-retries", strconv.Itoa(retries),
		"--retry-sleep", "http:" + strconv.Itoa(retrySleep),
		"--retry-sleep", "fragment:" + strconv.Itoa(retrySleep),
		"-o", filepath.Join(s.outputDir, base+".%(ext)s"),
		"--print", "after_move:filepath",
	}
	switch format {
	case FormatAudio:
		args = append(args, "-f", audioSelector)
	default:
		args = append(args, "-f", videoSelector)
		if s.mergeMP4 {
			args = append(args, "--merge-output-format", "mp4")
		}
	}
	args = append(args, "--", url)

	stdout, stderr, err := s.runner.Run(ctx, s.binary, args...)
	if err != nil {
		logger.Error().Err(err).Str("stderr", tail(stderr)).Msg("yt-dlp download failed")
		return nil, apperrors.NewFetchFailure(err, "Failed to download: "+errorLine(stderr, err))
	}

	path := s.confirmPath(lastLine(stdout), base)
	if path == "" {
		logger.Error().Str("base", base).Msg("Download finished but final file not confirmed")
		return nil, apperrors.NewFetchFailure(nil, "Download completed, but final file path not confirmed.")
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewFetchFailure(err, "Download completed, but final file path not confirmed.")
	}

	uploader := info.Uploader
	if uploader == "" {
		uploader = info.Channel
	}
	logger.Info().Str("path", path).Int64("bytes", st.Size()).Msg("Download finished")
	return &Media{
		Path: path,
		Metadata: Metadata{
			Title:           info.Title,
			Uploader:        uploader,
			DurationSeconds: info.Duration,
			ByteSize:        st.Size(),
		},
	}, nil
}

func (s *Service) describe(ctx context.Context, url string) (*mediaInfo, error) {
	stdout, stderr, err := s.runner.Run(ctx, s.binary,
		"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings",
		"--user-agent", userAgent, "--", url)
	if err != nil {
		msg := errorLine(stderr, err)
		if strings.Contains(strings.ToLower(msg), "unsupported url") {
			return nil, apperrors.NewFetchFailure(err, "Invalid or unsupported URL.")
		}
		return nil, apperrors.NewFetchFailure(err, "Error fetching media info: "+msg)
	}
	var info mediaInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, apperrors.NewFetchFailure(err, "Could not retrieve media information.")
	}
	return &info, nil
}

// confirmPath prefers the path yt-dlp printed, then a finished file starting with base.
func (s *Service) confirmPath(printed, base string) string {
	if printed != "" {
		if _, err := os.Stat(printed); err == nil {
			return printed
		}
	}
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base) && !isIntermediate(e.Name()) {
			return filepath.Join(s.outputDir, e.Name())
		}
	}
	return ""
}

// removeLeftovers deletes every file of a failed attempt, partial or finished.
func (s *Service) removeLeftovers(base string) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base) {
			continue
		}
		path := filepath.Join(s.outputDir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove download leftover")
		}
	}
}

func isIntermediate(name string) bool {
	switch {
	case strings.HasSuffix(name, ".part"), strings.HasSuffix(name, ".ytdl"):
		return true
	case strings.Contains(name, ".temp."):
		return true
	default:
		return formatPart.MatchString(name)
	}
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// errorLine picks the last "ERROR:" line of yt-dlp's stderr.
func errorLine(stderr []byte, fallback error) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(l, "ERROR:"))
		}
	}
	if l := lastLine(stderr); l != "" {
		return l
	}
	return fallback.Error()
}

func tail(b []byte) string {
	const limit = 512
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}

package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// Result identifies an uploaded video.
type Result struct {
	VideoID  string `json:"video_id"`
	VideoURL string `json:"video_url"`
}

// Uploader publishes the rendered short through the YouTube Data API v3.
type Uploader struct {
	cfg     config.UploadConfig
	secrets config.Secrets
	logDir  string
	log     *slog.Logger
}

// New creates an Uploader. Credentials are checked when Upload is called.
func New(cfg *config.Config, log *slog.Logger) *Uploader {
	return &Uploader{cfg: cfg.Upload, secrets: cfg.Secrets, logDir: cfg.Paths.Logs, log: log}
}

// Upload sends videoFile with meta and writes an upload log entry.
func (u *Uploader) Upload(ctx context.Context, videoFile string, meta *types.VideoMetadata) (Result, error) {
	svc, err := u.service(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("youtube auth: %w", err)
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return Result{}, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		u.log.Info("uploading", "title", meta.Title, "size", humanize.Bytes(uint64(fi.Size())))
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, BuildVideo(meta, u.cfg))
	call.Media(f)
	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("youtube upload: %w", err)
	}

	res := Result{
		VideoID:  uploaded.Id,
		VideoURL: "https://www.youtube.com/shorts/" + uploaded.Id,
	}
	u.log.Info("upload complete", "video_id", res.VideoID, "url", res.VideoURL)

	if path, err := LogUpload(u.logDir, res, videoFile, meta, time.Now()); err != nil {
		u.log.Warn("upload log not saved", "error", err)
	} else {
		u.log.Debug("upload log saved", "path", path)
	}
	return res, nil
}

func (u *Uploader) service(ctx context.Context) (*youtube.Service, error) {
	s := u.secrets
	if s.YouTubeClientID == "" || s.YouTubeClientSecret == "" || s.YouTubeRefreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     s.YouTubeClientID,
		ClientSecret: s.YouTubeClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: s.YouTubeRefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return youtube.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
}

// BuildVideo maps metadata onto the API resource. Hashtags go at the end of
// the description, where Shorts picks them up.
func BuildVideo(meta *types.VideoMetadata, cfg config.UploadConfig) *youtube.Video {
	desc := meta.Description
	if len(meta.Hashtags) > 0 {
		desc += "\n\n" + strings.Join(meta.Hashtags, " ")
	}
	visibility := meta.Visibility
	if visibility == "" {
		visibility = cfg.Visibility
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          desc,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      cfg.DefaultLanguage,
			DefaultAudioLanguage: cfg.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           visibility,
			SelfDeclaredMadeForKids: cfg.MadeForKids,
			// the API omits false unless forced
			ForceSendFields: []string{"SelfDeclaredMadeForKids"},
		},
	}
}

// LogUpload writes one JSON file per upload into dir and returns its path.
func LogUpload(dir string, res Result, videoFile string, meta *types.VideoMetadata, now time.Time) (string, error) {
	entry := struct {
		Result
		Title      string `json:"title"`
		UploadedAt string `json:"uploaded_at"`
		VideoFile  string `json:"video_file"`
	}{
		Result:     res,
		Title:      meta.Title,
		UploadedAt: now.UTC().Format(time.RFC3339),
		VideoFile:  videoFile,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("upload_%s_%s.json", now.UTC().Format("20060102_150405"), res.VideoID))
	return path, os.WriteFile(path, data, 0o644)
}

package visuals

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/types"
)

// Acquirer finds and downloads distinct stock clips for a run. A clip is
// distinct when it is unused in this run and was not used by any run within
// Window.
type Acquirer struct {
	Providers []Provider
	History   History
	Locks     *KeyLocks

	CacheDir        string
	Window          time.Duration
	PerQueryLimit   int
	MaxBytes        int64
	DownloadTimeout time.Duration

	HTTPClient *http.Client
	Now        func() time.Time
	Log        *slog.Logger
}

// NewAcquirer wires an Acquirer from config. locks is shared by every
// concurrent run in the process.
func NewAcquirer(cfg *config.Config, providers []Provider, history History, locks *KeyLocks, log *slog.Logger) *Acquirer {
	return &Acquirer{
		Providers:       providers,
		History:         history,
		Locks:           locks,
		CacheDir:        cfg.Paths.ClipCache,
		Window:          cfg.History.Window,
		PerQueryLimit:   cfg.Visuals.PerQueryLimit,
		MaxBytes:        cfg.Visuals.MaxDownloadBytes,
		DownloadTimeout: cfg.Visuals.DownloadTimeout,
		HTTPClient:      &http.Client{},
		Now:             time.Now,
		Log:             log,
	}
}

// FetchDistinct returns up to n assets for topic. Search terms, providers
// and hits are visited in an order drawn from run.Rand. Failures of single
// searches or downloads are logged and skipped; if nothing at all was
// acquired the error matches errors.ErrNoFootage.
func (a *Acquirer) FetchDistinct(ctx context.Context, run *types.RunContext, topic string, n int) ([]types.MediaAsset, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(a.Providers) == 0 {
		return nil, errors.Exhausted(errors.StageBackground, "no footage providers configured", nil)
	}

	terms := BuildQueries(topic)
	run.Rand.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })

	limit := max(a.PerQueryLimit, 1)
	var assets []types.MediaAsset
	var failures []error

	for _, term := range terms {
		if len(assets) >= n {
			break
		}
		providers := append([]Provider(nil), a.Providers...)
		run.Rand.Shuffle(len(providers), func(i, j int) { providers[i], providers[j] = providers[j], providers[i] })

		for _, p := range providers {
			if len(assets) >= n {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			hits, err := p.Search(ctx, term)
			if err != nil {
				a.Log.Warn("search failed", "provider", p.Name(), "query", term, "error", err)
				failures = append(failures, err)
				continue
			}
			run.Rand.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })

			taken := 0
			for _, hit := range hits {
				if taken >= limit || len(assets) >= n {
					break
				}
				asset, ok, err := a.claim(ctx, run, p.Name(), hit)
				if err != nil {
					a.Log.Warn("download failed", "provider", p.Name(), "id", hit.ID, "error", err)
					failures = append(failures, err)
					continue
				}
				if !ok {
					continue
				}
				assets = append(assets, asset)
				taken++
			}
		}
	}

	if len(assets) == 0 {
		var cause error
		if len(failures) > 0 {
			cause = errors.Join(failures...)
		}
		return nil, errors.Exhausted(errors.StageBackground, "no background footage", cause)
	}

	a.Log.Info("background footage acquired", "wanted", n, "got", len(assets), "terms", len(terms))
	return assets, nil
}

// claim checks, downloads and marks one hit while holding the key's lock,
// so two runs in this process cannot both take the same clip.
func (a *Acquirer) claim(ctx context.Context, run *types.RunContext, p types.Provider, hit Hit) (types.MediaAsset, bool, error) {
	if hit.ID == "" {
		return types.MediaAsset{}, false, nil
	}
	key := types.AssetKey(p, hit.ID)
	if run.Used(key) {
		return types.MediaAsset{}, false, nil
	}

	unlock := a.Locks.Lock(key)
	defer unlock()

	now := a.Now()
	recent, err := a.History.Recent(ctx, key, now, a.Window)
	if err != nil {
		// an unreadable history counts as empty
		a.Log.Warn("history lookup failed", "key", key, "error", err)
	}
	if recent {
		a.Log.Debug("skipping recently used clip", "key", key)
		return types.MediaAsset{}, false, nil
	}

	best, ok := BestPortrait(hit.Renditions)
	if !ok {
		return types.MediaAsset{}, false, nil
	}

	path := filepath.Join(a.CacheDir, fmt.Sprintf("%s_%s.mp4", p, hit.ID))
	if err := a.download(ctx, best.URL, path); err != nil {
		return types.MediaAsset{}, false, err
	}

	run.MarkUsed(key)
	if err := a.History.MarkUsed(ctx, key, now); err != nil {
		a.Log.Warn("history update failed", "key", key, "error", err)
	}

	return types.MediaAsset{
		Provider:   p,
		ExternalID: hit.ID,
		LocalPath:  path,
		HeightPx:   best.Height,
	}, true, nil
}

// download streams url into path. A non-empty file already at path is
// reused. Bodies larger than MaxBytes are discarded.
func (a *Acquirer) download(ctx context.Context, url, path string) error {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		a.Log.Debug("reusing cached clip", "path", path, "size", humanize.Bytes(uint64(info.Size())))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if a.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	if a.MaxBytes > 0 && resp.ContentLength > a.MaxBytes {
		return fmt.Errorf("clip is %s, limit %s",
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(a.MaxBytes)))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*.mp4")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = resp.Body
	if a.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, a.MaxBytes+1)
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	if a.MaxBytes > 0 && n > a.MaxBytes {
		return fmt.Errorf("clip exceeds %s", humanize.Bytes(uint64(a.MaxBytes)))
	}
	if n == 0 {
		return fmt.Errorf("empty download")
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	a.Log.Info("clip downloaded", "path", filepath.Base(path), "size", humanize.Bytes(uint64(n)))
	return nil
}

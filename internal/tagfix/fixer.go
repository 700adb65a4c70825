// Package tagfix converts an extracted archive of MP3 tracks into tagged,
// renamed files in the configured library layout.
package tagfix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"

	"github.com/henricj/fixvox/internal/archive"
	"github.com/henricj/fixvox/internal/atomicfile"
	"github.com/henricj/fixvox/internal/config"
	"github.com/henricj/fixvox/internal/mp3"
)

// trackInfo is the normalized metadata used for tagging and naming.
type trackInfo struct {
	Title    string
	Artist   string
	Album    string
	Track    int
	Duration time.Duration
}

// Fixer applies metadata fixes and emits tracks into the library.
type Fixer struct {
	library string
	masks   config.NamingOptions
	log     *slog.Logger
}

// New creates a Fixer from the run configuration.
func New(cfg *config.Config, log *slog.Logger) *Fixer {
	if log == nil {
		log = slog.Default()
	}
	return &Fixer{
		library: cfg.LibraryLocation,
		masks:   cfg.NamingMasks,
		log:     log,
	}
}

// Transform implements the batch transform callback: extract the archive
// into the working directory, fix every MP3 track's tags, and move the
// tracks into the library layout. Returns false when the archive holds no
// MP3 tracks at all, marking the input as intentionally excluded.
func (f *Fixer) Transform(ctx context.Context, src io.ReaderAt, size int64, workDir string) (bool, error) {
	extractDir := filepath.Join(workDir, "extracted")
	if err := os.MkdirAll(extractDir, 0o700); err != nil {
		return false, fmt.Errorf("create extraction directory: %w", err)
	}

	entries, err := archive.Extract(ctx, src, size, extractDir)
	if err != nil {
		return false, fmt.Errorf("extract archive: %w", err)
	}

	emitted := 0
	for _, path := range entries {
		if !strings.EqualFold(filepath.Ext(path), ".mp3") {
			f.log.Debug("ignoring non-audio entry", "path", path)
			continue
		}
		info, err := f.fixTrack(path)
		if err != nil {
			return false, fmt.Errorf("fix %s: %w", filepath.Base(path), err)
		}
		if err := f.emit(path, info); err != nil {
			return false, fmt.Errorf("emit %s: %w", filepath.Base(path), err)
		}
		emitted++
	}
	return emitted > 0, nil
}

// fixTrack normalizes the track's ID3v2 tag in place and returns the
// metadata used for naming. Missing fields fall back to values derived
// from the file name; the measured playback duration is written as TLEN.
func (f *Fixer) fixTrack(path string) (trackInfo, error) {
	duration, err := measureFile(path)
	if err != nil {
		return trackInfo{}, err
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return trackInfo{}, fmt.Errorf("open tag: %w", err)
	}
	defer tag.Close()

	info := trackInfo{
		Title:    strings.TrimSpace(tag.Title()),
		Artist:   strings.TrimSpace(tag.Artist()),
		Album:    strings.TrimSpace(tag.Album()),
		Duration: duration,
	}

	trackID := tag.CommonID("Track number/Position in set")
	info.Track = parseTrackNumber(tag.GetTextFrame(trackID).Text)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if info.Track == 0 {
		info.Track = trackFromName(base)
	}
	if info.Title == "" {
		info.Title = titleFromName(base)
	}
	if info.Artist == "" {
		info.Artist = "Unknown Artist"
	}
	if info.Album == "" {
		info.Album = "Unknown Album"
	}

	tag.SetTitle(info.Title)
	tag.SetArtist(info.Artist)
	tag.SetAlbum(info.Album)
	if info.Track > 0 {
		tag.AddTextFrame(trackID, tag.DefaultEncoding(), strconv.Itoa(info.Track))
	}
	if duration > 0 {
		tag.AddTextFrame("TLEN", tag.DefaultEncoding(), strconv.FormatInt(duration.Milliseconds(), 10))
	}

	if err := tag.Save(); err != nil {
		return trackInfo{}, fmt.Errorf("save tag: %w", err)
	}
	return info, nil
}

// emit moves the fixed track into the library layout. An existing library
// file is replaced atomically; the replacement and its backup are staged
// in the destination's directory so the swap stays on the library volume.
func (f *Fixer) emit(trackPath string, info trackInfo) error {
	folder := filepath.FromSlash(renderMask(f.masks.AlbumFolderMask, info))
	name := renderMask(f.masks.FileMask, info) + ".mp3"
	dest := filepath.Join(f.library, folder, name)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create library directory: %w", err)
	}

	if _, err := os.Stat(dest); err == nil {
		f.log.Debug("replacing existing library file", "path", dest)
		// The swap renames only work within one volume, and the working
		// directory may live on a different filesystem than the library.
		// Stage the incoming file beside the destination first.
		staged := filepath.Join(filepath.Dir(dest), "."+name+".tmp")
		if err := moveFile(trackPath, staged); err != nil {
			return fmt.Errorf("stage replacement: %w", err)
		}
		if err := atomicfile.Replace(dest, staged, filepath.Dir(dest), f.log); err != nil {
			os.Remove(staged)
			return err
		}
		return nil
	}
	return moveFile(trackPath, dest)
}

// measureFile computes the track's playback duration from its bitstream.
func measureFile(path string) (time.Duration, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open track: %w", err)
	}
	defer in.Close()

	duration, err := mp3.Measure(in)
	if err != nil {
		return 0, fmt.Errorf("measure duration: %w", err)
	}
	return duration, nil
}

// renderMask expands {artist}, {album}, {track} and {title} placeholders.
// A missing track number drops the usual "NN - " prefix.
func renderMask(mask string, info trackInfo) string {
	track := ""
	if info.Track > 0 {
		track = fmt.Sprintf("%02d", info.Track)
	}
	out := strings.NewReplacer(
		"{artist}", sanitizeFileName(info.Artist),
		"{album}", sanitizeFileName(info.Album),
		"{title}", sanitizeFileName(info.Title),
		"{track}", track,
	).Replace(mask)
	return strings.TrimPrefix(out, " - ")
}

// parseTrackNumber handles plain numbers and "N/M" position-in-set
// values.
func parseTrackNumber(text string) int {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '/'); i >= 0 {
		text = text[:i]
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// trackFromName picks up a leading track number from names like
// "03 - Title".
func trackFromName(base string) int {
	i := 0
	for i < len(base) && base[i] >= '0' && base[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 {
		return 0
	}
	n, err := strconv.Atoi(base[:i])
	if err != nil {
		return 0
	}
	return n
}

// titleFromName strips a leading "NN - " track prefix from the file name.
func titleFromName(base string) string {
	rest := base
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 && i <= 3 {
		trimmed := strings.TrimLeft(rest[i:], " .-_")
		if trimmed != "" {
			rest = trimmed
		}
	}
	if rest == "" {
		return "Unknown Title"
	}
	return rest
}

// sanitizeFileName cleans a string to make it safe for use as a file
// name.
func sanitizeFileName(name string) string {
	invalidChars := []string{"<", ">", ":", `"`, `/`, `\`, `|`, `?`, `*`, "\x00"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.Trim(result, " .")
	if len(result) > 255 {
		result = result[:255]
	}
	if result == "" {
		result = "unknown"
	}
	return result
}

// moveFile renames src to dest, falling back to a copy when the library
// lives on a different filesystem than the working directory.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

package publisher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/adris-vision/adris/internal/domain"
)

// ScanFrames lists the numbered frames in dir, ordered by index.
// Entries that vanish between listing and stat are skipped.
func ScanFrames(dir string, pattern domain.FramePattern) ([]domain.FrameFile, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	frames := make([]domain.FrameFile, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		idx, ok := pattern.Parse(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		frames = append(frames, domain.FrameFile{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Index:   idx,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

// Newest returns the most recent frame: latest modification time, ties
// broken by the highest index.
func Newest(frames []domain.FrameFile) (domain.FrameFile, bool) {
	if len(frames) == 0 {
		return domain.FrameFile{}, false
	}
	best := frames[0]
	for _, f := range frames[1:] {
		if f.NewerThan(best) {
			best = f
		}
	}
	return best, true
}

// RemoveFrames deletes every numbered frame in dir and returns how many
// were removed. Files already gone are ignored.
func RemoveFrames(dir string, pattern domain.FramePattern) (int, error) {
	frames, err := ScanFrames(dir, pattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	var errs []error
	for _, f := range frames {
		if err := os.Remove(f.Path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// pendingGlob matches temp files renameio leaves beside published when a
// process dies between create and rename.
func pendingGlob(published string) string {
	return filepath.Join(filepath.Dir(published), "."+filepath.Base(published)+"*")
}

// removePending deletes leftover temp publish files.
func removePending(published string) (int, error) {
	matches, err := filepath.Glob(pendingGlob(published))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

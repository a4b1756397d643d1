package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/smarttraffic/trafficd/internal/model"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pgm":  true,
	".ppm":  true,
}

// DirectorySource reads frames from a spool directory that an external
// grabber writes image files into. Grab consumes the newest file not yet
// handed out, waiting on filesystem events when the spool is empty.
type DirectorySource struct {
	index  int
	dir    string
	width  int
	height int

	mu           sync.Mutex
	lastConsumed string // basename of the newest file already handed out
}

func NewDirectorySource(index int, dir string, width, height int) *DirectorySource {
	return &DirectorySource{index: index, dir: dir, width: width, height: height}
}

func (s *DirectorySource) ID() int { return s.index }

// Grab returns the newest unconsumed image in the spool. With an empty
// spool it watches the directory until a file arrives or the context
// expires. Older unconsumed files are skipped: freshness beats completeness.
func (s *DirectorySource) Grab(ctx context.Context) (*model.Frame, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: create watcher: %v", model.ErrSourceFailed, err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return nil, fmt.Errorf("%w: watch spool %s: %v", model.ErrSourceFailed, s.dir, err)
	}

	for {
		// Scan after arming the watcher so no file slips between the two.
		if frame, err := s.consumeNewest(); err != nil {
			return nil, err
		} else if frame != nil {
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no frame in spool %s: %v", model.ErrSourceFailed, s.dir, ctx.Err())
		case event, ok := <-watcher.Events:
			if !ok {
				return nil, fmt.Errorf("%w: watcher closed", model.ErrSourceFailed)
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("%w: watcher closed", model.ErrSourceFailed)
			}
			return nil, fmt.Errorf("%w: watch spool: %v", model.ErrSourceFailed, werr)
		}
	}
}

// consumeNewest picks the newest image file not yet consumed, reads it, and
// advances the consumption marker. Returns (nil, nil) when nothing new is
// present.
func (s *DirectorySource) consumeNewest() (*model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read spool %s: %v", model.ErrSourceFailed, s.dir, err)
	}

	var newest os.DirEntry
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == nil || info.ModTime().After(newestMod) {
			newest = entry
			newestMod = info.ModTime()
		}
	}

	if newest == nil || newest.Name() == s.lastConsumed {
		return nil, nil
	}

	path := filepath.Join(s.dir, newest.Name())
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read frame %s: %v", model.ErrSourceFailed, path, err)
	}
	if len(data) == 0 {
		// Writer may still be mid-flight; treat as not yet available.
		return nil, nil
	}

	s.lastConsumed = newest.Name()

	return &model.Frame{
		ID:         uuid.New().String(),
		SourceID:   s.index,
		CapturedAt: newestMod.UTC(),
		Width:      s.width,
		Height:     s.height,
		Data:       data,
	}, nil
}

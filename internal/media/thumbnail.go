package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"cobiv/internal/logging"
	"cobiv/internal/metrics"
)

// DefaultCellSize is the thumbnail long side in pixels.
const DefaultCellSize = 120

const placeholderName = "placeholder.png"

// ThumbnailRequest asks for the thumbnail of one catalog file.
type ThumbnailRequest struct {
	FileID int64
	Source string
}

// ThumbnailCache stores one PNG per catalog file id and generates missing
// ones either on demand or from a FIFO queue drained by a single worker.
type ThumbnailCache struct {
	dir         string
	cellSize    int
	placeholder string

	// decode loads a source image; replaced in tests.
	decode func(path string) (image.Image, error)

	// genMu serializes generation so the worker and Get never write the
	// same cache file concurrently.
	genMu sync.Mutex

	queueMu sync.Mutex
	queue   []ThumbnailRequest
	notify  chan struct{}

	workerMu sync.Mutex
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewThumbnailCache creates the cache directory if needed and writes the
// placeholder used for undecodable sources.
func NewThumbnailCache(dir string, cellSize int) (*ThumbnailCache, error) {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	c := &ThumbnailCache{
		dir:         dir,
		cellSize:    cellSize,
		placeholder: filepath.Join(dir, placeholderName),
		notify:      make(chan struct{}, 1),
	}
	c.decode = func(path string) (image.Image, error) {
		return LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	}

	if err := c.writePlaceholder(); err != nil {
		return nil, err
	}

	logging.Debug("ThumbnailCache: dir=%s cell=%d", dir, cellSize)
	return c, nil
}

// Dir returns the cache directory.
func (c *ThumbnailCache) Dir() string {
	return c.dir
}

// CellSize returns the thumbnail long side in pixels.
func (c *ThumbnailCache) CellSize() int {
	return c.cellSize
}

// PlaceholderPath returns the image substituted for undecodable sources.
func (c *ThumbnailCache) PlaceholderPath() string {
	return c.placeholder
}

// Path returns the cache path for a file id. It depends on the id only.
func (c *ThumbnailCache) Path(fileID int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(fileID, 10)+".png")
}

// Get returns the cached thumbnail for fileID, generating it from source
// first when absent. Decode failures return the placeholder path.
func (c *ThumbnailCache) Get(fileID int64, source string) string {
	path := c.Path(fileID)
	if exists(path) {
		metrics.ThumbnailCacheHits.Inc()
		return path
	}

	metrics.ThumbnailCacheMisses.Inc()
	return c.generate(fileID, source, "sync")
}

// Enqueue schedules background generation. It never blocks on generation.
func (c *ThumbnailCache) Enqueue(reqs ...ThumbnailRequest) {
	if len(reqs) == 0 {
		return
	}

	c.queueMu.Lock()
	c.queue = append(c.queue, reqs...)
	depth := len(c.queue)
	c.queueMu.Unlock()

	metrics.ThumbnailQueueDepth.Set(float64(depth))

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// QueueLen returns the number of pending requests.
func (c *ThumbnailCache) QueueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

// ClearQueue drops every pending request.
func (c *ThumbnailCache) ClearQueue() {
	c.queueMu.Lock()
	c.queue = nil
	c.queueMu.Unlock()

	metrics.ThumbnailQueueDepth.Set(0)
}

func (c *ThumbnailCache) pop() (ThumbnailRequest, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if len(c.queue) == 0 {
		return ThumbnailRequest{}, false
	}
	req := c.queue[0]
	c.queue[0] = ThumbnailRequest{}
	c.queue = c.queue[1:]
	metrics.ThumbnailQueueDepth.Set(float64(len(c.queue)))
	return req, true
}

// Start launches the background worker unless one is already running.
func (c *ThumbnailCache) Start() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.stop != nil {
		return
	}

	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.run(c.stop)

	metrics.ThumbnailWorkerRunning.Set(1)
	logging.Debug("Thumbnail worker started")
}

// Stop signals the worker and waits for it to exit. A generation in
// progress finishes first.
func (c *ThumbnailCache) Stop() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.stop == nil {
		return
	}

	close(c.stop)
	c.wg.Wait()
	c.stop = nil

	metrics.ThumbnailWorkerRunning.Set(0)
	logging.Debug("Thumbnail worker stopped")
}

// Restart stops any running worker and starts a new one.
func (c *ThumbnailCache) Restart() {
	c.Stop()
	c.Start()
}

// Running reports whether the worker is running.
func (c *ThumbnailCache) Running() bool {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	return c.stop != nil
}

func (c *ThumbnailCache) run(stop <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		req, ok := c.pop()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-stop:
				return
			}
		}

		if !exists(c.Path(req.FileID)) {
			c.generate(req.FileID, req.Source, "worker")
		}
	}
}

// Invalidate removes the cached thumbnails of ids. Missing files are ignored.
// A generation in flight for one of the ids finishes first, so its output
// is removed too.
func (c *ThumbnailCache) Invalidate(ids ...int64) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	for _, id := range ids {
		err := os.Remove(c.Path(id))
		switch {
		case err == nil:
			metrics.ThumbnailInvalidations.Inc()
			logging.Debug("Thumbnail invalidated: %d", id)
		case errors.Is(err, fs.ErrNotExist):
		default:
			logging.Warn("Failed to remove thumbnail %d: %v", id, err)
		}
	}
}

func (c *ThumbnailCache) generate(fileID int64, source, origin string) string {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	path := c.Path(fileID)
	if exists(path) {
		return path
	}

	logging.Debug("Thumbnail generating: %d from %s", fileID, source)

	start := time.Now()
	img, err := c.decode(source)
	metrics.ThumbnailGenerationDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Warn("Failed to decode %s, using placeholder: %v", source, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues(origin, "decode_error").Inc()
		return c.placeholder
	}

	start = time.Now()
	thumb := c.render(img)
	metrics.ThumbnailGenerationDuration.WithLabelValues("resize").Observe(time.Since(start).Seconds())

	start = time.Now()
	err = writePNG(path, thumb)
	metrics.ThumbnailGenerationDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Warn("Failed to write thumbnail %s: %v", path, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues(origin, "write_error").Inc()
		return c.placeholder
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(origin, "success").Inc()
	return path
}

// render scales img so its long side equals the cell size and flattens it
// onto an opaque background.
func (c *ThumbnailCache) render(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := fitLongSide(b.Dx(), b.Dy(), c.cellSize)

	resized := imaging.Resize(img, w, h, imaging.Lanczos)
	bg := imaging.New(w, h, color.White)
	return imaging.Overlay(bg, resized, image.Pt(0, 0), 1.0)
}

func (c *ThumbnailCache) writePlaceholder() error {
	if exists(c.placeholder) {
		return nil
	}

	size := c.cellSize
	img := imaging.New(size, size, color.NRGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff})
	inner := imaging.New(size/2, size/2, color.NRGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff})
	img = imaging.Paste(img, inner, image.Pt(size/4, size/4))

	if err := writePNG(c.placeholder, img); err != nil {
		return fmt.Errorf("failed to write placeholder: %w", err)
	}
	return nil
}

// writePNG encodes img next to path and renames it into place, so readers
// never observe a partial file.
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	err = imaging.Encode(tmp, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
	}
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Caption shortens a file name for display under a thumbnail: names longer
// than 12 characters keep their first 5 and last 7.
func Caption(name string) string {
	name = filepath.Base(name)
	if utf8.RuneCountInString(name) <= 12 {
		return name
	}
	r := []rune(name)
	return string(r[:5]) + "..." + string(r[len(r)-7:])
}

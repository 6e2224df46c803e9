// Package imgrec contains an image recorder used to automatically save scans to disk.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/server"
)

// Recorder records scans with incrementing filenames in yyyy-mm-dd subfolders.
// Every file of one scan shares a number; Incr moves to the next.
// It is not thread safe.
type Recorder struct {
	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	now := time.Now()
	y, m, d := now.Year(), now.Month(), now.Day()
	r.timeFldr = fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := path.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, errors.Wrapf(err, "creating %s", fldr)
}

// Counter returns the number the next files will carry
func (r *Recorder) Counter() int {
	return r.counter
}

// filename returns the path of the current scan's file with the given suffix
func (r *Recorder) filename(suffix string) (string, error) {
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	fn := fmt.Sprintf("%s%06d%s", r.Prefix, r.counter, suffix)
	return path.Join(fldr, fn), nil
}

func (r *Recorder) create(suffix string, write func(io.Writer) error) (string, error) {
	fn, err := r.filename(suffix)
	if err != nil {
		return "", err
	}
	f, err := os.Create(fn)
	if err != nil {
		return "", errors.Wrap(err, "creating recording")
	}
	defer f.Close()
	if err := write(f); err != nil {
		return "", errors.Wrapf(err, "writing %s", fn)
	}
	return fn, nil
}

// RecordCaptures writes capture planes as the current scan's FITS cube
func (r *Recorder) RecordCaptures(planes []*raster.Plane, cards []fitsio.Card) (string, error) {
	return r.create(".fits", func(w io.Writer) error {
		return WriteCube(w, cards, planes)
	})
}

// RecordMap writes a correspondence map as the current scan's map file
func (r *Recorder) RecordMap(m *dispmap.Map, cards []fitsio.Card) (string, error) {
	return r.create("_map.fits", func(w io.Writer) error {
		return WriteMap(w, cards, m)
	})
}

// RecordPatterns writes every raster pattern of seq as a PNG.  Patterns
// without a raster payload are skipped.
func (r *Recorder) RecordPatterns(seq *pattern.Sequence) ([]string, error) {
	var out []string
	for i := 0; i < seq.Size(); i++ {
		p, err := seq.Get(i)
		if err != nil {
			return out, err
		}
		if p.Type != pattern.ImageData {
			continue
		}
		fn, err := r.create(fmt.Sprintf("_pattern%03d.png", i), func(w io.Writer) error {
			return WritePNG(w, p.Image)
		})
		if err != nil {
			return out, err
		}
		out = append(out, fn)
	}
	return out, nil
}

// Incr updates the filename counter; it scans the folder to do so.  If there is an error, the counter is not incremented
func (r *Recorder) Incr() {
	r.updateFolder()
	dn, err := r.mkDir()
	if err != nil {
		return
	}
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := -1
	for _, file := range files {
		// skip directories and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimPrefix(fn, r.Prefix)
		if len(bit) < 6 {
			continue
		}
		n, err := strconv.Atoi(bit[:6])
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	if count < r.counter {
		count = r.counter
	}
	r.counter = count + 1
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement server.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := h.Recorder
	rec.Root = str.Str
	rec.updateFolder()
	_, err = rec.mkDir()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.Recorder.Root}
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.Recorder.Prefix}
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: h.Recorder.Enabled}
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.Enabled = bT.Bool
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix, and /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}

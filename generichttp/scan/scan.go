// Package scan provides an HTTP interface to a structured light codec and,
// optionally, a scanner driving a projector and camera
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"sync"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/nasa-jpl/structlight/acquire"
	"github.com/nasa-jpl/structlight/camera"
	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/generichttp"
	"github.com/nasa-jpl/structlight/imgrec"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/retcode"
	"github.com/nasa-jpl/structlight/server"
	"github.com/nasa-jpl/structlight/server/middleware/locker"
)

// ErrNoScanner is generated when a scan is requested from a wrapper without a scanner
var ErrNoScanner = errors.New("no scanner configured")

// HTTPWrapper holds a codec and the patterns it generated, and serves them
// together with decoding and scanning over HTTP.  Setup takes the write
// lock; everything else takes the read lock.
type HTTPWrapper struct {
	mu       sync.RWMutex
	params   *param.Set
	codec    coding.Codec
	patterns *pattern.Sequence
	coverage float64

	// Scanner is used by POST /scan.  It may be nil.
	Scanner *acquire.Scanner

	// Recorder, if enabled, receives every scan's captures, map, and patterns
	Recorder *imgrec.Recorder

	// Lock is held for the duration of a scan
	Lock *locker.Locker

	// Logger receives request level messages.  nil disables logging.
	Logger *zap.SugaredLogger

	// RouteTable maps routes to handlers
	RouteTable server.RouteTable
}

// NewHTTPWrapper builds the codec named by the Method entry of params and
// returns a wrapper around it
func NewHTTPWrapper(params *param.Set, scanner *acquire.Scanner, rec *imgrec.Recorder, logger *zap.SugaredLogger) (*HTTPWrapper, retcode.ReturnCode) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &HTTPWrapper{Scanner: scanner, Recorder: rec, Logger: logger, Lock: locker.New()}
	h.Lock.DoNotProtect = append(h.Lock.DoNotProtect, "decode")
	rc := h.setup(params)
	if rc.HasErrors() {
		return nil, rc
	}
	rt := server.RouteTable{
		{Method: http.MethodGet, Path: "/method"}:            generichttp.GetString(h.method),
		{Method: http.MethodGet, Path: "/pattern-count"}:     generichttp.GetInt(h.patternCount),
		{Method: http.MethodGet, Path: "/coverage"}:          generichttp.GetFloat(h.lastCoverage),
		{Method: http.MethodGet, Path: "/scanner"}:           generichttp.GetBool(h.hasScanner),
		{Method: http.MethodGet, Path: "/settings"}:          h.GetSettings,
		{Method: http.MethodPost, Path: "/setup"}:            h.Setup,
		{Method: http.MethodPost, Path: "/method"}:           generichttp.SetString(h.setMethod),
		{Method: http.MethodGet, Path: "/include-inverted"}:  generichttp.GetBool(h.includeInverted),
		{Method: http.MethodPost, Path: "/include-inverted"}: generichttp.SetBool(h.setIncludeInverted),
		{Method: http.MethodGet, Path: "/patterns/{idx}"}:    h.GetPattern,
		{Method: http.MethodPost, Path: "/decode"}:           h.Decode,
		{Method: http.MethodPost, Path: "/scan"}:             h.Scan,
	}
	h.RouteTable = rt
	locker.Inject(h, h.Lock)
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	return h, rc
}

// RT satisfies server.HTTPer
func (h *HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// Router returns a chi router serving the route table behind the lock
func (h *HTTPWrapper) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.Lock.Check)
	h.RouteTable.Bind(r)
	return r
}

// setup builds a codec from params and swaps it in if setup succeeds
func (h *HTTPWrapper) setup(params *param.Set) retcode.ReturnCode {
	codec, rc := coding.FromParams(params)
	if rc.HasErrors() {
		return rc
	}
	pats := pattern.NewSequence()
	rc.Append(codec.GeneratePatternSequence(pats))
	if rc.HasErrors() {
		return rc
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params = params
	h.codec = codec
	h.patterns = pats
	h.Logger.Infow("codec configured", "method", codec.Method(), "patterns", codec.PatternCount())
	return rc
}

func (h *HTTPWrapper) method() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.codec.Method().String(), nil
}

func (h *HTTPWrapper) setMethod(s string) error {
	var m coding.Method
	if err := m.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	return h.setParam("Method", m.String())
}

// setParam rebuilds the codec with one entry changed
func (h *HTTPWrapper) setParam(key string, val interface{}) error {
	h.mu.RLock()
	params := h.params.Copy()
	h.mu.RUnlock()
	if err := params.Put(key, val); err != nil {
		return err
	}
	return h.setup(params).Err()
}

func (h *HTTPWrapper) includeInverted() (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.params.Bool("IncludeInverted", true), nil
}

func (h *HTTPWrapper) setIncludeInverted(b bool) error {
	return h.setParam("IncludeInverted", b)
}

func (h *HTTPWrapper) patternCount() (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.codec.PatternCount(), nil
}

func (h *HTTPWrapper) lastCoverage() (float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coverage, nil
}

func (h *HTTPWrapper) hasScanner() (bool, error) {
	return h.Scanner != nil, nil
}

// GetSettings returns the current parameters as a JSON object
func (h *HTTPWrapper) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	all := h.params.All()
	h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(all); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Setup merges a JSON object of parameters into the current ones and
// rebuilds the codec.  On failure every problem is returned and the previous
// codec stays in place.
func (h *HTTPWrapper) Setup(w http.ResponseWriter, r *http.Request) {
	updates := map[string]interface{}{}
	err := json.NewDecoder(r.Body).Decode(&updates)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.RLock()
	params := h.params.Copy()
	h.mu.RUnlock()
	if err := params.Merge(param.FromMap(updates)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rc := h.setup(params)
	if rc.HasErrors() {
		http.Error(w, rc.String(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetPattern serves pattern idx as a PNG
func (h *HTTPWrapper) GetPattern(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.RLock()
	p, err := h.patterns.Get(idx)
	h.mu.RUnlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := imgrec.WritePNG(&buf, p.Image); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Decode reads a FITS cube with one frame per pattern from the request body
// and replies with the correspondence map as a FITS image.  The query
// parameter smooth applies a Gaussian blur of that many pixels first.
func (h *HTTPWrapper) Decode(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	planes, err := raster.ReadFITS(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sigma := 0.
	if s := r.URL.Query().Get("smooth"); s != "" {
		sigma, err = strconv.ParseFloat(s, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	imgs := make([]image.Image, len(planes))
	for i, p := range planes {
		imgs[i] = raster.Smooth(p, sigma).Gray16()
	}
	caps, err := capture.FromImages(0, imgs...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	codec := h.codec
	h.mu.RUnlock()
	dmap, rc := codec.DecodeCaptureSequence(caps)
	if rc.HasErrors() {
		http.Error(w, rc.String(), http.StatusBadRequest)
		return
	}
	h.respondMap(w, dmap, rc, codec, "")
}

// Scan runs the scanner with the current codec and replies with the
// correspondence map as a FITS image.  Configuration routes answer 423
// while it runs.
func (h *HTTPWrapper) Scan(w http.ResponseWriter, r *http.Request) {
	if h.Scanner == nil {
		http.Error(w, ErrNoScanner.Error(), http.StatusServiceUnavailable)
		return
	}
	if !h.Lock.TryLock() {
		w.WriteHeader(http.StatusLocked)
		return
	}
	defer h.Lock.Unlock()

	h.mu.RLock()
	codec := h.codec
	h.mu.RUnlock()
	dmap, caps, rc := h.Scanner.Scan(r.Context(), codec)
	if rc.HasErrors() {
		h.Logger.Errorw("scan failed", "err", rc.Err())
		http.Error(w, rc.String(), http.StatusInternalServerError)
		return
	}
	scanID := caps.Settings().String("ScanID", "")
	if rec := h.Recorder; rec != nil && rec.Enabled && rec.Root != "" {
		if err := h.record(caps, dmap, scanID); err != nil {
			h.Logger.Errorw("recording scan failed", "scan", scanID, "err", err)
		}
	}
	h.respondMap(w, dmap, rc, codec, scanID)
}

func (h *HTTPWrapper) record(caps *capture.Sequence, dmap *dispmap.Map, scanID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	planes, err := caps.Planes()
	if err != nil {
		return err
	}
	cards := h.cards(h.codec, scanID)
	if c, ok := h.Scanner.Camera.(camera.MetadataMaker); ok {
		cards = append(cards, c.CollectHeaderMetadata()...)
	}
	if _, err := h.Recorder.RecordCaptures(planes, cards); err != nil {
		return err
	}
	if _, err := h.Recorder.RecordMap(dmap, h.cards(h.codec, scanID)); err != nil {
		return err
	}
	if _, err := h.Recorder.RecordPatterns(h.patterns); err != nil {
		return err
	}
	h.Recorder.Incr()
	return nil
}

func (h *HTTPWrapper) cards(codec coding.Codec, scanID string) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "METHOD", Value: codec.Method().String(), Comment: "structured light codec"},
		{Name: "PATTERNS", Value: codec.PatternCount()},
	}
	if scanID != "" {
		cards = append(cards, fitsio.Card{Name: "SCANID", Value: scanID})
	}
	return cards
}

func (h *HTTPWrapper) respondMap(w http.ResponseWriter, dmap *dispmap.Map, rc retcode.ReturnCode, codec coding.Codec, scanID string) {
	n := dmap.Width() * dmap.Height()
	coverage := 0.
	if n > 0 {
		coverage = float64(dmap.ValidCount()) / float64(n)
	}
	h.mu.Lock()
	h.coverage = coverage
	h.mu.Unlock()

	var buf bytes.Buffer
	if err := imgrec.WriteMap(&buf, h.cards(codec, scanID), dmap); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hdr := w.Header()
	for _, warn := range rc.Warnings() {
		hdr.Add("X-Warning", warn)
	}
	hdr.Set("Content-Type", "image/fits")
	hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", mapFilename(scanID)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func mapFilename(scanID string) string {
	if scanID == "" {
		return "map.fits"
	}
	return scanID + "_map.fits"
}

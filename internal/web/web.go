package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"playamap/internal/config"
	"playamap/internal/engine"
	"playamap/internal/ics"
	appLog "playamap/internal/log"
	"playamap/internal/preview"
	"playamap/internal/timeline"
)

// CaptureFunc takes a PNG of a page. preview.CapturePNG in production.
type CaptureFunc func(ctx context.Context, opts preview.CaptureOptions) ([]byte, error)

// Server exposes the engine over HTTP.
type Server struct {
	// ctx bounds playback started from a request; request contexts end with
	// the response.
	ctx     context.Context
	cfg     *config.Config
	eng     *engine.Engine
	player  *timeline.Player
	router  *mux.Router
	capture CaptureFunc
}

// NewServer constructs a new Server. ctx is the process lifetime context.
func NewServer(ctx context.Context, cfg *config.Config, eng *engine.Engine, player *timeline.Player) *Server {
	s := &Server{
		ctx:     ctx,
		cfg:     cfg,
		eng:     eng,
		player:  player,
		router:  mux.NewRouter(),
		capture: preview.CapturePNG,
	}
	s.registerRoutes()
	return s
}

// SetCapture replaces the screenshot backend.
func (s *Server) SetCapture(fn CaptureFunc) { s.capture = fn }

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Use(logRequests)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// All routes live on the root router; a subrouter would answer a method
	// mismatch with 404 instead of 405.
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/preview", s.handlePreview).Methods(http.MethodGet)
	s.router.HandleFunc("/preview.png", s.handlePreviewPNG).Methods(http.MethodGet)

	s.router.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/active", s.handleActive).Methods(http.MethodGet)
	s.router.HandleFunc("/api/camps", s.handleCamps).Methods(http.MethodGet)
	s.router.HandleFunc("/api/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/calendar.ics", s.handleCalendar).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cursor", s.handleCursor).Methods(http.MethodPost)
	s.router.HandleFunc("/api/playback/{action:start|stop|reset|speed}", s.handlePlayback).Methods(http.MethodPost)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON response shape for /api/state and the playback
// endpoints.
type stateResponse struct {
	Instant       time.Time `json:"instant"`
	OffsetMinutes int       `json:"offset_minutes"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Running       bool      `json:"running"`
	Step          int       `json:"step"`
	Steps         []int     `json:"steps"`
	Darkness      float64   `json:"darkness"`
	ActiveCount   int       `json:"active_count"`
	LocatedCount  int       `json:"located_count"`
	Label         string    `json:"label"`
}

func (s *Server) state(snap engine.Snapshot) stateResponse {
	cur := s.eng.Cursor()
	w := cur.Window()
	return stateResponse{
		Instant:       snap.Instant,
		OffsetMinutes: int(snap.Offset / time.Minute),
		WindowStart:   w.Start,
		WindowEnd:     w.End,
		Running:       s.player.Running(),
		Step:          snap.Step,
		Steps:         cur.Steps(),
		Darkness:      snap.Darkness,
		ActiveCount:   len(snap.Active),
		LocatedCount:  snap.Located(),
		Label:         timeline.CountLabel(len(snap.Active)),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state(s.eng.Snapshot()))
}

// activeDTO is a JSON-friendly view of one active event.
type activeDTO struct {
	UID          string    `json:"uid"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	HostedByCamp string    `json:"hosted_by_camp,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Located      bool      `json:"located"`
	X            *float64  `json:"x,omitempty"`
	Y            *float64  `json:"y,omitempty"`
	Detail       string    `json:"detail"`
}

type activeResponse struct {
	Instant time.Time   `json:"instant"`
	Label   string      `json:"label"`
	Events  []activeDTO `json:"events"`
}

// snapshotFor returns the snapshot at ?at= if given, else at the cursor.
func (s *Server) snapshotFor(r *http.Request) (engine.Snapshot, error) {
	at := r.URL.Query().Get("at")
	if at == "" {
		return s.eng.Snapshot(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("invalid at %q: want RFC3339", at)
	}
	return s.eng.SnapshotAt(t), nil
}

// handleActive lists events active at the cursor, or at ?at=RFC3339 without
// moving the cursor.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshotFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := activeResponse{
		Instant: snap.Instant,
		Label:   timeline.CountLabel(len(snap.Active)),
		Events:  make([]activeDTO, 0, len(snap.Active)),
	}
	for _, ae := range snap.Active {
		dto := activeDTO{
			UID:          ae.Event.UID,
			Title:        ae.Event.Title,
			Type:         ae.Event.TypeAbbr(),
			HostedByCamp: ae.Event.HostedByCamp,
			Start:        ae.Occurrence.Start,
			End:          ae.Occurrence.End,
			Located:      ae.Located,
			Detail:       s.eng.Describe(ae.Event, snap.Instant).String(),
		}
		if ae.Located {
			x, y := ae.Coordinate.X, ae.Coordinate.Y
			dto.X, dto.Y = &x, &y
		}
		resp.Events = append(resp.Events, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

type campDTO struct {
	UID      string  `json:"uid"`
	Name     string  `json:"name"`
	Location string  `json:"location_string,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type campsResponse struct {
	Calibration string    `json:"calibration"`
	Total       int       `json:"total"`
	Located     int       `json:"located"`
	Camps       []campDTO `json:"camps"`
}

func (s *Server) handleCamps(w http.ResponseWriter, _ *http.Request) {
	ix := s.eng.Index()
	resp := campsResponse{
		Calibration: s.eng.Resolver().Calibration().Name,
		Total:       ix.Total(),
		Located:     ix.Len(),
		Camps:       make([]campDTO, 0, ix.Len()),
	}
	for _, uid := range ix.UIDs() {
		p, _ := ix.Lookup(uid)
		dto := campDTO{UID: uid, X: p.X, Y: p.Y}
		if c, ok := s.eng.Camp(uid); ok {
			dto.Name = c.Name
			dto.Location = c.LocationString
		}
		resp.Camps = append(resp.Camps, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

type diagnosticDTO struct {
	CampUID  string `json:"camp_uid"`
	CampName string `json:"camp_name"`
	Reason   string `json:"reason"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	diags := s.eng.Diagnostics()
	out := make([]diagnosticDTO, 0, len(diags))
	for _, d := range diags {
		out = append(out, diagnosticDTO{CampUID: d.CampUID, CampName: d.CampName, Reason: d.Err.Error()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CampUID < out[j].CampUID })
	writeJSON(w, http.StatusOK, out)
}

// cursorRequest moves the cursor either to an absolute instant or to an
// offset from the window start. Exactly one must be set.
type cursorRequest struct {
	Instant       *time.Time `json:"instant"`
	OffsetMinutes *int       `json:"offset_minutes"`
}

func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var snap engine.Snapshot
	switch {
	case req.Instant != nil && req.OffsetMinutes != nil:
		writeError(w, http.StatusBadRequest, "set either instant or offset_minutes, not both")
		return
	case req.Instant != nil:
		snap = s.eng.SetInstant(*req.Instant)
	case req.OffsetMinutes != nil:
		snap = s.eng.SetOffsetMinutes(*req.OffsetMinutes)
	default:
		writeError(w, http.StatusBadRequest, "instant or offset_minutes is required")
		return
	}
	writeJSON(w, http.StatusOK, s.state(snap))
}

type speedRequest struct {
	Step *int `json:"step"`
}

// handlePlayback runs one playback control: start, stop, reset (stop and
// rewind) or speed (cycle the step, or set it from {"step": n}).
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	switch action {
	case "start":
		s.player.Start(s.ctx)
	case "stop":
		s.player.Stop()
	case "reset":
		s.player.Stop()
		s.eng.Reset()
	case "speed":
		var req speedRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		if req.Step == nil {
			s.eng.Cursor().CycleStep()
			break
		}
		if err := s.eng.Cursor().SetStep(*req.Step); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	appLog.Info("playback control", "action", action, "running", s.player.Running(), "step", s.eng.Cursor().Step())
	writeJSON(w, http.StatusOK, s.state(s.eng.Snapshot()))
}

// handleCalendar exports the events active at the instant as an ICS
// calendar, one VEVENT per current showing.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshotFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]ics.ExportItem, 0, len(snap.Active))
	for _, ae := range snap.Active {
		items = append(items, ics.ExportItem{
			Event:      ae.Event,
			Occurrence: ae.Occurrence,
			Location:   s.eng.Describe(ae.Event, snap.Instant).Location,
		})
	}

	var buf bytes.Buffer
	if err := ics.Export(&buf, items, time.Now()); err != nil {
		appLog.Error("calendar export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="playamap.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handlePreview renders the echarts marker page for the cursor, or ?at=.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshotFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	center := s.eng.Resolver().Center()
	var buf bytes.Buffer
	err = preview.Render(&buf, snap, preview.ChartOptions{
		Width:  s.cfg.Preview.Width,
		Height: s.cfg.Preview.Height,
		Center: &center,
	})
	if err != nil {
		appLog.Error("preview render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render preview")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handlePreviewPNG screenshots this server's own /preview page.
func (s *Server) handlePreviewPNG(w http.ResponseWriter, r *http.Request) {
	target := "http://" + localAddr(s.cfg.Listen) + "/preview"
	if at := r.URL.Query().Get("at"); at != "" {
		if _, err := time.Parse(time.RFC3339, at); err != nil {
			writeError(w, http.StatusBadRequest, "invalid at: want RFC3339")
			return
		}
		target += "?" + url.Values{"at": {at}}.Encode()
	}

	png, err := s.capture(r.Context(), preview.CaptureOptions{
		URL:     target,
		Width:   s.cfg.Preview.Width,
		Height:  s.cfg.Preview.Height,
		Timeout: s.cfg.Preview.Timeout,
	})
	if err != nil {
		appLog.Error("preview capture failed", err, "url", target)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "failed to capture preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// localAddr turns a listen address into one a local browser can dial.
func localAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}
	if strings.HasPrefix(listen, "0.0.0.0:") {
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return listen
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

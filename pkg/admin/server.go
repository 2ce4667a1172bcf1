package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wifisim/wifisim-go/pkg/handshake"
	"github.com/wifisim/wifisim-go/pkg/keystore"
	"github.com/wifisim/wifisim-go/pkg/service"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
	"github.com/wifisim/wifisim-go/pkg/topology"
)

// maxBodySize bounds request bodies.
const maxBodySize = 5 << 20

// AccessPoint is the part of service.APService the API uses.
type AccessPoint interface {
	BSSID() string
	State() service.ServiceState
	Handshakes() []handshake.Status
	Sessions(ctx context.Context) ([]*sessionstore.Record, error)
	Stats() service.APStats
	SendDemo(ctx context.Context, deviceID, text, targetID string) error
	Deauthenticate(ctx context.Context, deviceID string) error
}

// Config configures the admin server.
type Config struct {
	// Address to listen on, e.g. ":3001".
	Address string

	// Topology is required.
	Topology *topology.Registry

	// Keys stores saved key files. Nil disables /api/keys/save.
	Keys *keystore.Store

	// AP enables the session and device routes (optional).
	AP AccessPoint

	// Version is reported by /api/health.
	Version string

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Topology == nil {
		return nil, errors.New("admin: topology registry required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/topology", s.handleTopology)
	s.mux.HandleFunc("/api/device/add", s.handleDeviceAdd)
	s.mux.HandleFunc("/api/device/send", s.handleDeviceSend)
	s.mux.HandleFunc("/api/device/deauth", s.handleDeviceDeauth)
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/keys/save", s.handleKeysSave)
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	err := s.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	return s.Serve(l)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type okResponse struct {
	OK       bool               `json:"ok"`
	Error    string             `json:"error,omitempty"`
	Topology *topology.Topology `json:"topology,omitempty"`
	Path     string             `json:"path,omitempty"`
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
	Text     string `json:"text,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

type handshakeStatus struct {
	DeviceID string `json:"deviceId"`
	State    string `json:"state"`
}

type sessionsResponse struct {
	BSSID      string                 `json:"bssid"`
	State      string                 `json:"state"`
	Handshakes []handshakeStatus      `json:"handshakes"`
	Sessions   []*sessionstore.Record `json:"sessions"`
	Received   uint64                 `json:"received"`
	Rejected   uint64                 `json:"rejected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.config.Version,
	})
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Topology.Snapshot())
}

// handleDeviceAdd adds a device; adding a known device is a no-op.
func (s *Server) handleDeviceAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.DeviceID)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, okResponse{Error: "deviceId required"})
		return
	}

	added, err := s.config.Topology.AddDevice(id)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, okResponse{Error: err.Error()})
		return
	}
	if added {
		s.debugLog("device added", "device", id)
	}

	snap := s.config.Topology.Snapshot()
	writeJSON(w, http.StatusOK, okResponse{OK: true, Topology: &snap})
}

func (s *Server) handleDeviceSend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.deviceAction(w, r)
	if !ok {
		return
	}
	if err := s.config.AP.SendDemo(r.Context(), req.DeviceID, req.Text, req.TargetID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleDeviceDeauth(w http.ResponseWriter, r *http.Request) {
	req, ok := s.deviceAction(w, r)
	if !ok {
		return
	}
	if err := s.config.AP.Deauthenticate(r.Context(), req.DeviceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// deviceAction validates the common shape of device routes.
func (s *Server) deviceAction(w http.ResponseWriter, r *http.Request) (deviceRequest, bool) {
	var req deviceRequest
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if s.config.AP == nil {
		writeJSON(w, http.StatusServiceUnavailable, okResponse{Error: "access point not configured"})
		return req, false
	}
	if s.config.AP.State() != service.StateRunning {
		writeError(w, service.ErrNotStarted)
		return req, false
	}
	if !decodeBody(w, r, &req) {
		return req, false
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, okResponse{Error: "deviceId required"})
		return req, false
	}
	return req, true
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.AP == nil {
		writeJSON(w, http.StatusServiceUnavailable, okResponse{Error: "access point not configured"})
		return
	}

	records, err := s.config.AP.Sessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*sessionstore.Record{}
	}

	resp := sessionsResponse{
		BSSID:      s.config.AP.BSSID(),
		State:      s.config.AP.State().String(),
		Handshakes: []handshakeStatus{},
		Sessions:   records,
	}
	for _, st := range s.config.AP.Handshakes() {
		resp.Handshakes = append(resp.Handshakes, handshakeStatus{DeviceID: st.DeviceID, State: st.State.String()})
	}
	stats := s.config.AP.Stats()
	resp.Received, resp.Rejected = stats.Received, stats.Rejected

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKeysSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Keys == nil {
		writeJSON(w, http.StatusServiceUnavailable, okResponse{Error: "key storage not configured"})
		return
	}

	var kp keystore.KeyPair
	if !decodeBody(w, r, &kp) {
		return
	}
	if kp.ID == "" || kp.PubHex == "" || kp.PrivHex == "" {
		writeJSON(w, http.StatusBadRequest, okResponse{Error: "Missing id/pubHex/privHex"})
		return
	}

	path, err := s.config.Keys.Save(kp)
	if err != nil {
		if errors.Is(err, keystore.ErrInvalidID) || errors.Is(err, keystore.ErrMissingField) {
			writeJSON(w, http.StatusBadRequest, okResponse{Error: err.Error()})
			return
		}
		if s.logger != nil {
			s.logger.Error("save keys", "id", kp.ID, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, okResponse{Error: err.Error()})
		return
	}

	s.debugLog("keys saved", "id", kp.ID, "path", path)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// decodeBody parses a JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, okResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotStarted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, sessionstore.ErrUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, okResponse{Error: err.Error()})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

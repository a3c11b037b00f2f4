package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/prite36/floraseven/internal/models"
	"github.com/prite36/floraseven/internal/mqtt"
	"github.com/prite36/floraseven/internal/service"
	"github.com/prite36/floraseven/internal/thresholds"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			log.Printf("[ERROR] Health check: database unreachable: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

type rootResponse struct {
	Environment   string `json:"environment"`
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	env := s.cfg.Environment
	if env == "" {
		env = "development"
	}
	writeData(w, r, rootResponse{
		Environment:   env,
		Status:        "ok",
		MQTTConnected: s.nodes != nil && s.nodes.IsConnected(),
	}, "")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.monitor.ComputeStatus(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err, nil)
		return
	}
	writeData(w, r, status, "")
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, s.monitor.Thresholds(r.Context()), "")
}

func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholds.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid threshold payload: %w", err), nil)
		return
	}
	if len(req) == 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("no thresholds supplied"), nil)
		return
	}

	result, err := s.monitor.UpdateThresholds(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err, result)
		return
	}
	if len(result.Updated) == 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("no thresholds were updated"), result)
		return
	}
	writeData(w, r, result, fmt.Sprintf("%d parameter(s) updated", len(result.Updated)))
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Errorf("image exceeds the %d MB limit", s.cfg.Server.MaxUploadMB), nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err), nil)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("missing image file in form field \"file\""), nil)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("failed to read image: %w", err), nil)
		return
	}

	result, err := s.monitor.AnalyzeImage(r.Context(), image)
	if err != nil {
		writeError(w, r, statusFor(err), err, result)
		return
	}
	writeData(w, r, result, "image analyzed")
}

type latestImageResponse struct {
	Filename string                `json:"image_filename"`
	Analysis *models.ImageAnalysis `json:"analysis"`
}

func (s *Server) handleLatestImage(w http.ResponseWriter, r *http.Request) {
	path, analysis, err := s.monitor.LatestImage(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err, nil)
		return
	}
	if r.URL.Query().Get("metadata") == "true" {
		writeData(w, r, latestImageResponse{Filename: filepath.Base(path), Analysis: analysis}, "")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request) {
	var req service.WaterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid water command: %w", err), nil)
			return
		}
	}
	req.Source = models.SourceManual

	event, err := s.monitor.Water(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err, event)
		return
	}
	writeData(w, r, event, fmt.Sprintf("pump %s command sent", event.State))
}

func (s *Server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.CaptureImage(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err, nil)
		return
	}
	writeData(w, r, nil, "image capture requested")
}

func (s *Server) handleReadNow(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.ReadNow(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err, nil)
		return
	}
	writeData(w, r, nil, "sensor reading requested")
}

// limitParam parses the optional positive ?limit= value; 0 means unset.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

func (s *Server) handleWateringHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	events, err := s.monitor.WateringHistory(r.Context(), limit)
	if err != nil {
		writeError(w, r, statusFor(err), err, nil)
		return
	}
	writeData(w, r, events, "")
}

type connectionResponse struct {
	MQTTConnected bool              `json:"mqtt_connected"`
	Nodes         []mqtt.NodeStatus `json:"nodes"`
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	resp := connectionResponse{Nodes: []mqtt.NodeStatus{}}
	if s.nodes != nil {
		resp.MQTTConnected = s.nodes.IsConnected()
		resp.Nodes = s.nodes.NodeStatuses()
	}
	writeData(w, r, resp, "")
}

func (s *Server) handleConnectionEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	events := []mqtt.ConnectionEvent{}
	if s.nodes != nil {
		events = s.nodes.ConnectionEvents(limit)
	}
	writeData(w, r, events, "")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.New("live updates are not available"), nil)
		return
	}
	s.hub.ServeWS(func(ctx context.Context) (any, error) {
		return s.monitor.ComputeStatus(ctx)
	})(w, r)
}

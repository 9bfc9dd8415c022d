// Package server exposes the capture service over HTTP for remote control.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/playcapture/internal/capture"
	"github.com/audiolibrelab/playcapture/internal/service"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

const shutdownTimeout = 5 * time.Second

// Server is the web server for remote control
type Server struct {
	service service.Service
	port    string
	engine  *gin.Engine
}

// GenericResponse is the envelope every mutating endpoint answers with
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type StopResponse struct {
	GenericResponse
	Result *capture.Result `json:"result,omitempty"`
}

type StatusResponse struct {
	service.CaptureStatus
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container"`
}

type RecordingInfo struct {
	Path       string  `json:"path"`
	FileSize   int64   `json:"file_size"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth"`
	Frames     int     `json:"frames"`
	DataLength int64   `json:"data_length"`
	Duration   float64 `json:"duration_seconds"`
	Peak       int     `json:"peak"`
}

type SourcesResponse struct {
	Sources []string `json:"sources"`
}

type ProfileSelectRequest struct {
	Profile string `json:"profile" binding:"required"`
}

// New creates a new web server instance around svc
func New(svc service.Service, port string) *Server {
	s := &Server{service: svc, port: port}
	s.engine = s.routes()
	return s
}

// Handler exposes the routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/api")
	{
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
		api.GET("/status", s.handleStatus)
		api.GET("/result", s.handleResult)
		api.GET("/recording", s.handleRecording)
		api.HEAD("/recording", s.handleRecording)
		api.GET("/recording/info", s.handleRecordingInfo)
		api.POST("/recording/export", s.handleExport)
		api.GET("/sources", s.handleSources)
		api.POST("/config/select", s.handleSelectProfile)
	}
	return engine
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// finalizes any active session.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting PlayCapture web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", s.port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := s.service.Close(); closeErr != nil {
		slog.Warn("Failed to close capture service", "error", closeErr)
	}
	return err
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.service.GetCaptureStatus().State})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.service.StartCapture(); err != nil {
		s.sendErrorResponse(c, statusFor(err), fmt.Sprintf("Failed to start capture: %v", err), "operation", "start")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Capture started"})
}

func (s *Server) handleStop(c *gin.Context) {
	res, err := s.service.StopCapture()
	if err != nil {
		slog.Error("Stop finished with errors", "error", err)
		c.JSON(http.StatusInternalServerError, StopResponse{
			GenericResponse: GenericResponse{Message: "Recording could not be saved", Error: err.Error()},
			Result:          res,
		})
		return
	}

	message := "Nothing to stop"
	switch {
	case res == nil:
	case res.ContainerBytes > 0:
		message = "Recording saved to " + res.ContainerPath
	default:
		message = "Stopped, nothing was captured"
	}
	c.JSON(http.StatusOK, StopResponse{
		GenericResponse: GenericResponse{Success: true, Message: message},
		Result:          res,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	cfg := s.service.GetConfig()
	c.JSON(http.StatusOK, StatusResponse{
		CaptureStatus: s.service.GetCaptureStatus(),
		SampleRate:    cfg.Capture.SampleRate,
		Container:     cfg.ContainerPath(),
	})
}

func (s *Server) handleResult(c *gin.Context) {
	res := s.service.LastResult()
	if res == nil {
		s.sendErrorResponse(c, http.StatusNotFound, "No session has finished yet")
		return
	}
	body := gin.H{"result": res}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecording(c *gin.Context) {
	path := s.service.GetConfig().ContainerPath()
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		s.sendErrorResponse(c, http.StatusNotFound, "No recording available")
		return
	}
	c.Header("Content-Type", "audio/wav")
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}

func (s *Server) handleRecordingInfo(c *gin.Context) {
	info, err := s.service.Inspect()
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		s.sendErrorResponse(c, status, fmt.Sprintf("Cannot read recording: %v", err))
		return
	}
	c.JSON(http.StatusOK, recordingInfo(info))
}

func recordingInfo(info *wav.Info) RecordingInfo {
	return RecordingInfo{
		Path:       info.Path,
		FileSize:   info.FileSize,
		SampleRate: int(info.Header.SampleRate),
		Channels:   int(info.Header.Channels),
		BitDepth:   int(info.Header.BitDepth),
		Frames:     info.Frames,
		DataLength: info.DataLength,
		Duration:   info.Duration.Seconds(),
		Peak:       info.Peak,
	}
}

func (s *Server) handleExport(c *gin.Context) {
	path, err := s.service.Export(c.Request.Context())
	if err != nil {
		s.sendErrorResponse(c, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err), "operation", "export")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Exported to " + path})
}

func (s *Server) handleSources(c *gin.Context) {
	sources, err := s.service.ListSources()
	if err != nil {
		s.sendErrorResponse(c, http.StatusInternalServerError, fmt.Sprintf("Failed to list sources: %v", err))
		return
	}
	c.JSON(http.StatusOK, SourcesResponse{Sources: sources})
}

func (s *Server) handleSelectProfile(c *gin.Context) {
	var req ProfileSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Profile name is required")
		return
	}
	if err := s.service.LoadProfile(req.Profile); err != nil {
		s.sendErrorResponse(c, statusFor(err), fmt.Sprintf("Failed to load profile: %v", err), "profile", req.Profile)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Profile " + req.Profile + " loaded"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrPlaybackSetup):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// sendErrorResponse logs and answers with the error envelope
func (s *Server) sendErrorResponse(c *gin.Context, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode, "path", c.Request.URL.Path}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	c.AbortWithStatusJSON(statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func getLocalIP() string {
	// the UDP dial sends nothing, it only picks the outbound interface
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "localhost"
}

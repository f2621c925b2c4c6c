package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"shotlog/models"
	"shotlog/pkg/ingest"
	"shotlog/pkg/readout"
	"shotlog/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// server holds what the HTTP handlers need.
type server struct {
	repo        store.Repository
	media       *store.Media
	ingest      *ingest.Service
	mediaPrefix string
	maxUpload   int64
	log         *slog.Logger
}

func init() {
	// Report validation errors under the JSON field name.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

func setupRoutes(r *gin.Engine, s *server) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", metricsHandler())

	r.POST("/process-image/", s.processImageHandler)
	r.GET("/sessions/", s.listSessionsHandler)
	r.POST("/sessions/", s.createSessionHandler)
	r.DELETE("/sessions/:id/", s.deleteSessionHandler)
	r.GET("/sessions/:id/shots/", s.listShotsHandler)
	r.GET(s.mediaPrefix+"/*path", s.mediaHandler)
}

// processImageHandler ingests one uploaded photo and returns the extracted metrics.
func (s *server) processImageHandler(c *gin.Context) {
	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Image too large (max %d MB)", s.maxUpload>>20)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	display, err := readout.ParseDisplay(c.PostForm("display_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var sessionRef *uint
	if v := strings.TrimSpace(c.PostForm("session_id")); v != "" {
		// anything that is not a positive id starts a new session
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil && parsed != 0 {
			id := uint(parsed)
			sessionRef = &id
		}
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	res, err := s.ingest.Ingest(c.Request.Context(), ingest.Upload{
		Filename:   fh.Filename,
		Data:       data,
		SessionRef: sessionRef,
		Display:    display,
	})
	if err != nil {
		var perr *ingest.ProcessingError
		if errors.As(err, &perr) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Processing failed: " + perr.Err.Error(),
				"shot_id": perr.ShotID,
			})
			return
		}
		s.log.Error("ingest failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shot_id":    res.Shot.ID,
		"session_id": res.Session.ID,
		"data":       res.OCR.Data(),
		"confidence": res.OCR.Confidence,
		"raw_text":   res.OCR.RawText,
	})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func (s *server) listSessionsHandler(c *gin.Context) {
	sessions, err := s.repo.ListSessions(c.Request.Context())
	if err != nil {
		s.log.Error("list sessions", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

type createSessionRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Notes string `json:"notes"`
}

func (s *server) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, fieldErrors(verrs))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"name": []string{"This field may not be blank."}})
		return
	}
	session, err := s.repo.CreateSession(c.Request.Context(), req.Name, req.Notes)
	if err != nil {
		s.log.Error("create session", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// fieldErrors renders validation failures as {"field": ["message"]}.
func fieldErrors(verrs validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required."
		case "max":
			msg = fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		default:
			msg = fmt.Sprintf("Failed on the %q rule.", fe.Tag())
		}
		out[fe.Field()] = append(out[fe.Field()], msg)
	}
	return out
}

func (s *server) deleteSessionHandler(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	images, err := s.repo.DeleteSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.log.Error("delete session", "session", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	for _, img := range images {
		if err := s.media.Remove(img); err != nil {
			s.log.Warn("remove shot image", "image", img, "err", err)
		}
	}
	c.Status(http.StatusNoContent)
}

// shotResponse is a shot with its image exposed as a URL.
type shotResponse struct {
	models.Shot
	Image string `json:"image"`
}

func (s *server) listShotsHandler(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	shots, err := s.repo.ListShots(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.log.Error("list shots", "session", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]shotResponse, 0, len(shots))
	for _, sh := range shots {
		out = append(out, shotResponse{Shot: sh, Image: s.mediaURL(sh.Image)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) mediaURL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.mediaPrefix + "/" + strings.TrimPrefix(rel, "/")
}

func (s *server) mediaHandler(c *gin.Context) {
	data, err := s.media.Read(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidPath) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.log.Error("read media", "path", c.Param("path"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// sessionID parses the :id route parameter, answering 404 when it is not an id.
func sessionID(c *gin.Context) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return 0, false
	}
	return uint(parsed), true
}

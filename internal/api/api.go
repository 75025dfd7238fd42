// Package api is the HTTP surface: ad-hoc scrapes, track CRUD, manual runs,
// history export and a websocket change feed.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"price-tracker/internal/export"
	"price-tracker/internal/models"
	"price-tracker/internal/scrape"
	"price-tracker/internal/tracks"
)

type APIHandler struct {
	tracks   *tracks.Service
	scraper  *scrape.Scraper
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func SetupRoutes(r *gin.RouterGroup, svc *tracks.Service, scraper *scrape.Scraper, hub *Hub, log zerolog.Logger) *APIHandler {
	handler := &APIHandler{
		tracks:  svc,
		scraper: scraper,
		hub:     hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "api").Logger(),
	}

	r.POST("/scrape", handler.Scrape)

	t := r.Group("/tracks")
	{
		t.POST("", handler.CreateTrack)
		t.GET("", handler.ListTracks)
		t.GET("/:id", handler.GetTrack)
		t.PATCH("/:id", handler.UpdateTrack)
		t.POST("/:id/run", handler.RunTrack)
		t.GET("/:id/export", handler.ExportTrack)
	}

	return handler
}

type scrapeRequest struct {
	URL     string        `json:"url" binding:"required"`
	Method  models.Method `json:"method"`
	Pincode string        `json:"pincode"`
	Fresh   bool          `json:"fresh"`
	Debug   bool          `json:"debug"`
}

// Scrape runs one ad-hoc acquisition without creating a track.
func (h *APIHandler) Scrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	result := h.scraper.Scrape(c.Request.Context(), req.URL, "", scrape.Options{
		Method:             req.Method,
		Pincode:            req.Pincode,
		FreshContext:       req.Fresh,
		DebugDumpOnFailure: req.Debug,
	})

	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) CreateTrack(c *gin.Context) {
	var in tracks.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	track, err := h.tracks.Create(c.Request.Context(), in)
	if err != nil {
		h.log.Error().Err(err).Msg("create track")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, track)
}

func (h *APIHandler) ListTracks(c *gin.Context) {
	list, err := h.tracks.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": list, "count": len(list)})
}

func (h *APIHandler) GetTrack(c *gin.Context) {
	id, ok := h.trackID(c)
	if !ok {
		return
	}

	track, err := h.tracks.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *APIHandler) UpdateTrack(c *gin.Context) {
	id, ok := h.trackID(c)
	if !ok {
		return
	}

	var patch tracks.UpdatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	track, err := h.tracks.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *APIHandler) RunTrack(c *gin.Context) {
	id, ok := h.trackID(c)
	if !ok {
		return
	}

	outcome, err := h.tracks.RunNow(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *APIHandler) ExportTrack(c *gin.Context) {
	id, ok := h.trackID(c)
	if !ok {
		return
	}

	track, err := h.tracks.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	snapshots, err := h.tracks.History(c.Request.Context(), id, 0)
	if err != nil {
		h.renderError(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	filename := fmt.Sprintf("track-%d-history.%s", id, format)

	switch format {
	case "csv":
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Header("Content-Type", "text/csv")
		if err := export.WriteCSV(c.Writer, track, snapshots); err != nil {
			h.log.Error().Err(err).Uint("track_id", id).Msg("csv export")
		}
	case "xlsx":
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := export.WriteXLSX(c.Writer, track, snapshots); err != nil {
			h.log.Error().Err(err).Uint("track_id", id).Msg("xlsx export")
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format", "message": format})
	}
}

// ServeWS upgrades the connection and hands it to the change-event hub.
func (h *APIHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	h.hub.Add(conn)
}

func (h *APIHandler) trackID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track id", "message": c.Param("id")})
		return 0, false
	}
	return uint(id), true
}

func (h *APIHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracks.ErrTrackNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
	case errors.Is(err, tracks.ErrManualRunTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "run timed out", "message": err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "message": err.Error()})
	}
}

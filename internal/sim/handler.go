package sim

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/reelcoach/companion/internal/auth"
	"github.com/reelcoach/companion/pkg/queue"
	"github.com/reelcoach/companion/pkg/response"
	"github.com/reelcoach/companion/pkg/storage"
)

// Handler serves the coaching simulator HTTP and WebSocket endpoints. The
// database, Redis, S3, and JWT collaborators are all optional so the
// simulator can run with only the pieces that are configured.
type Handler struct {
	patterns   PatternSource
	sessions   *SessionRepository
	recordings *RecordingRepository
	events     EventPublisher
	uploads    *queue.Queue
	s3         *storage.S3
	jwt        *auth.JWTService
	logger     *zap.Logger
}

// NewHandler creates a simulator handler. patterns must be non-nil; every
// other collaborator may be nil.
func NewHandler(patterns PatternSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{patterns: patterns, logger: logger}
}

// SetSessionRepository enables session logging.
func (h *Handler) SetSessionRepository(r *SessionRepository) { h.sessions = r }

// SetRecordingRepository enables recording registration.
func (h *Handler) SetRecordingRepository(r *RecordingRepository) { h.recordings = r }

// SetEventPublisher enables session event fan-out.
func (h *Handler) SetEventPublisher(p EventPublisher) { h.events = p }

// SetUploadQueue enables background recording uploads.
func (h *Handler) SetUploadQueue(q *queue.Queue) { h.uploads = q }

// SetStorage enables presigned download URLs.
func (h *Handler) SetStorage(s *storage.S3) { h.s3 = s }

// SetJWT enables token validation on the live endpoint.
func (h *Handler) SetJWT(m *auth.JWTService) { h.jwt = m }

// RegisterRoutes mounts all simulator routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/coaching/live/:session_id", h.ServeLive)
	rg.GET("/outliers/items/:id", h.GetPattern)
	rg.GET("/coaching/sessions", h.ListSessions)
	rg.GET("/coaching/sessions/:session_id", h.GetSession)
	rg.POST("/coaching/sessions/:session_id/recordings", h.RegisterRecording)
	rg.GET("/coaching/sessions/:session_id/recordings", h.ListSessionRecordings)
	rg.GET("/recordings/:id", h.GetRecording)
	rg.GET("/recordings/:id/download", h.GetRecordingDownloadURL)
}

// ServeLive handles the WebSocket upgrade for a live coaching session.
func (h *Handler) ServeLive(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}
	if h.jwt != nil {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		if _, err := h.jwt.Validate(token); err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
	}
	outputMode := c.DefaultQuery("output_mode", "text")
	persona := c.DefaultQuery("persona", "chill_guide")
	var patternID *string
	if v := c.Query("pattern_id"); v != "" {
		patternID = &v
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newLiveClient(conn, sessionID, outputMode, persona, patternID, h)
	client.run()
}

// GetPattern handles GET /outliers/items/:id, serving the pattern doc the
// guide loader consumes.
func (h *Handler) GetPattern(c *gin.Context) {
	doc, err := h.patterns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPatternNotFound) {
			response.NotFound(c, "pattern not found")
			return
		}
		h.logger.Error("get pattern failed", zap.Error(err), zap.String("pattern_id", c.Param("id")))
		response.Internal(c, "failed to load pattern")
		return
	}
	c.Data(200, "application/json", doc)
}

// ListSessions handles GET /coaching/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		response.ServiceUnavailable(c, "session store not configured")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	list, err := h.sessions.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// GetSession handles GET /coaching/sessions/:session_id.
func (h *Handler) GetSession(c *gin.Context) {
	if h.sessions == nil {
		response.ServiceUnavailable(c, "session store not configured")
		return
	}
	s, err := h.sessions.GetBySessionID(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "session not found")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, s)
}

// RegisterRecording handles POST /coaching/sessions/:session_id/recordings.
// It stores the finished take and enqueues a background upload to S3.
func (h *Handler) RegisterRecording(c *gin.Context) {
	if h.recordings == nil {
		response.ServiceUnavailable(c, "recording store not configured")
		return
	}
	var req struct {
		SourceURL string `json:"source_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "source_url required")
		return
	}

	rec := &Recording{
		SessionID: c.Param("session_id"),
		SourceURL: req.SourceURL,
		Status:    RecordingStatusPending,
	}
	if err := h.recordings.Create(c.Request.Context(), rec); err != nil {
		h.logger.Error("create recording failed", zap.Error(err))
		response.Internal(c, "failed to register recording")
		return
	}

	if h.uploads != nil {
		payload := queue.RecordingUploadPayload{
			RecordingID: rec.ID,
			SessionID:   rec.SessionID,
			SourceURL:   rec.SourceURL,
		}
		if err := h.uploads.EnqueueRecordingUpload(c.Request.Context(), payload); err != nil {
			h.logger.Error("enqueue recording upload failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		}
	}

	response.Created(c, rec)
}

// ListSessionRecordings handles GET /coaching/sessions/:session_id/recordings.
func (h *Handler) ListSessionRecordings(c *gin.Context) {
	if h.recordings == nil {
		response.ServiceUnavailable(c, "recording store not configured")
		return
	}
	list, err := h.recordings.ListBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("session_id", c.Param("session_id")))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// GetRecording handles GET /recordings/:id.
func (h *Handler) GetRecording(c *gin.Context) {
	if h.recordings == nil {
		response.ServiceUnavailable(c, "recording store not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.recordings.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording failed", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return
	}
	response.OK(c, rec)
}

// GetRecordingDownloadURL handles GET /recordings/:id/download, returning a
// time-limited presigned S3 URL for an uploaded recording.
func (h *Handler) GetRecordingDownloadURL(c *gin.Context) {
	if h.recordings == nil || h.s3 == nil {
		response.ServiceUnavailable(c, "recording downloads not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.recordings.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording failed", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return
	}
	if rec.Status != RecordingStatusUploaded || rec.S3Key == "" {
		response.Conflict(c, "recording not uploaded yet")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), rec.S3Key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign failed", zap.Error(err), zap.String("key", rec.S3Key))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(h.s3.PresignExpire().Seconds())})
}

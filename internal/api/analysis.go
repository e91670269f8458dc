package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/internal/storage"
	"github.com/MrWong99/ispitch/internal/store"
	"github.com/MrWong99/ispitch/internal/worker"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// listResponse is the body of GET /v2/analysis.
type listResponse struct {
	Analyses []analysis.Summary `json:"analyses"`
	Metadata analysis.Page      `json:"metadata"`
}

// handleInitiate stores the upload, creates the PENDING record and queues
// the analysis. It answers 202 with the new id.
func (s *Server) handleInitiate(c *gin.Context) {
	ctx := c.Request.Context()
	user := userID(c)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondMessage(c, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondMessage(c, http.StatusBadRequest, "missing audio file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	path, err := s.deps.Uploads.SaveTemporaryFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		respondMessage(c, http.StatusUnsupportedMediaType, "only .mp3 and .wav files are accepted")
		return
	case errors.Is(err, storage.ErrTooLarge):
		respondMessage(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	case err != nil:
		respondError(c, http.StatusBadRequest, err)
		return
	}

	id := s.newID()
	log := observe.Logger(ctx).With("analysis_id", id, "user_id", user)

	if _, err := s.deps.Store.Save(ctx, analysis.NewPending(id, user, fh.Filename, s.now())); err != nil {
		s.discard(c, path)
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.deps.Broker.Publish(ctx, id, analysis.StatusEvent(analysis.StatusPending)); err != nil {
		log.Warn("publish pending status failed", "err", err)
	}

	req := pipeline.Request{AnalysisID: id, AudioPath: path, Filename: fh.Filename, UserID: user}
	if err := s.deps.Scheduler.Submit(ctx, req); err != nil {
		log.Error("schedule analysis failed", "err", err)
		s.abandon(c, req)
		status := http.StatusInternalServerError
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		respondMessage(c, status, "analysis could not be scheduled")
		return
	}

	log.Info("analysis accepted", "filename", fh.Filename, "bytes", fh.Size)
	c.JSON(http.StatusAccepted, id)
}

// abandon closes out a record whose run never started.
func (s *Server) abandon(c *gin.Context, req pipeline.Request) {
	ctx := c.Request.Context()
	log := observe.Logger(ctx).With("analysis_id", req.AnalysisID)
	if _, err := s.deps.Store.Save(ctx, analysis.NewFailed(req.AnalysisID, req.UserID, req.Filename, s.now())); err != nil {
		log.Error("save failed record", "err", err)
	}
	if err := s.deps.Broker.Publish(ctx, req.AnalysisID, analysis.StatusEvent(analysis.StatusFailed)); err != nil {
		log.Warn("publish failed status", "err", err)
	}
	s.discard(c, req.AudioPath)
}

func (s *Server) discard(c *gin.Context, path string) {
	if err := s.deps.Uploads.CleanupTemporaryFile(path); err != nil {
		observe.Logger(c.Request.Context()).Warn("cleanup upload failed", "path", path, "err", err)
	}
}

func (s *Server) handleGet(c *gin.Context) {
	a, ok := s.owned(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a)
}

// owned loads id and checks it belongs to the caller. It writes the error
// response itself and reports whether the caller may proceed.
func (s *Server) owned(c *gin.Context, id string) (*analysis.Analysis, bool) {
	a, err := s.deps.Store.FindByID(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondMessage(c, http.StatusNotFound, "analysis not found")
		return nil, false
	case err != nil:
		respondError(c, http.StatusInternalServerError, err)
		return nil, false
	case a.UserID != "" && a.UserID != userID(c):
		respondMessage(c, http.StatusNotFound, "analysis not found")
		return nil, false
	}
	return a, true
}

func (s *Server) handleList(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil || page < 1 {
		respondMessage(c, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	size, err := intQuery(c, "pageSize", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		respondMessage(c, http.StatusBadRequest, "pageSize must be between 1 and "+strconv.Itoa(maxPageSize))
		return
	}

	items, total, err := s.deps.Store.ListByUser(c.Request.Context(), userID(c), page, size)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []analysis.Summary{}
	}
	c.JSON(http.StatusOK, listResponse{Analyses: items, Metadata: analysis.NewPage(page, size, total)})
}

func (s *Server) handleStats(c *gin.Context) {
	r, err := analysis.ParseTimeRange(c.Query("range"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "range must be one of day, month, year, all")
		return
	}
	st, err := s.deps.Store.Stats(c.Request.Context(), userID(c), r)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleRecent(c *gin.Context) {
	sum, err := s.deps.Store.FindRecentByUser(c.Request.Context(), userID(c))
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondMessage(c, http.StatusNotFound, "no analyses yet")
	case err != nil:
		respondError(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, sum)
	}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

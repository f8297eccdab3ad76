package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/engine"
	"github.com/versecraft/lyricmem/ingest"
	"github.com/versecraft/lyricmem/internal/profile"
	"github.com/versecraft/lyricmem/store"
)

// APIV1Service exposes the retrieval engine over REST.
type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Writer    *engine.Writer
	Retriever *engine.Retriever
	Pipeline  *ingest.Pipeline
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, writer *engine.Writer, retriever *engine.Retriever, pipeline *ingest.Pipeline) *APIV1Service {
	return &APIV1Service{
		Profile:   profile,
		Store:     store,
		Writer:    writer,
		Retriever: retriever,
		Pipeline:  pipeline,
	}
}

// RegisterRoutes mounts the v1 API on the given Echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/ingest", s.Ingest)
	g.POST("/chunks", s.CreateChunk)
	g.GET("/chunks/:uid", s.GetChunk)
	g.DELETE("/chunks/:uid", s.DeleteChunk)
	g.POST("/retrieve", s.Retrieve)
	g.POST("/backfill", s.Backfill)
	g.GET("/integrity", s.VerifyIntegrity)
}

type ingestRequest struct {
	Paths        []string `json:"paths"`
	AllowPending bool     `json:"allow_pending"`
}

// Ingest runs the full pipeline over local paths: load, chunk, label, write.
func (s *APIV1Service) Ingest(c echo.Context) error {
	req := &ingestRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Paths) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "paths is required")
	}

	result, err := s.Pipeline.Run(c.Request().Context(), req.Paths, ingest.PipelineOptions{
		AllowPending: req.AllowPending,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type createChunkRequest struct {
	UID               string `json:"uid"`
	Source            string `json:"source"`
	Timestamp         int64  `json:"timestamp"`
	Text              string `json:"text"`
	Emotion           string `json:"emotion"`
	TimeScope         string `json:"time_scope"`
	Intensity         int    `json:"intensity"`
	VoiceMode         string `json:"voice_mode"`
	AuthenticityScore int    `json:"authenticity_score"`
	SpecificityScore  int    `json:"specificity_score"`
	ClicheScore       int    `json:"cliche_score"`
	AllowPending      bool   `json:"allow_pending"`
}

// CreateChunk writes one pre-chunked, pre-labeled chunk.
func (s *APIV1Service) CreateChunk(c echo.Context) error {
	req := &createChunkRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	chunk := &store.Chunk{
		UID:               req.UID,
		Source:            req.Source,
		Timestamp:         req.Timestamp,
		Text:              req.Text,
		Emotion:           req.Emotion,
		TimeScope:         req.TimeScope,
		Intensity:         req.Intensity,
		VoiceMode:         req.VoiceMode,
		AuthenticityScore: req.AuthenticityScore,
		SpecificityScore:  req.SpecificityScore,
		ClicheScore:       req.ClicheScore,
		WordCount:         len(splitWords(req.Text)),
	}
	created, err := s.Writer.Write(c.Request().Context(), chunk, engine.WriteOptions{
		AllowPending: req.AllowPending,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, chunkResponse(created))
}

func (s *APIV1Service) GetChunk(c echo.Context) error {
	chunk, err := s.Store.GetChunkByUID(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, chunkResponse(chunk))
}

func (s *APIV1Service) DeleteChunk(c echo.Context) error {
	uid := c.Param("uid")
	if err := s.Store.DeleteChunk(c.Request().Context(), &store.DeleteChunk{UID: &uid}); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Retrieve answers one hybrid retrieval query.
func (s *APIV1Service) Retrieve(c echo.Context) error {
	req := &engine.RetrieveRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" && !req.MetadataOnly {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required unless metadata_only is set")
	}

	resp, err := s.Retriever.Retrieve(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

type backfillRequest struct {
	Limit int `json:"limit"`
}

// Backfill embeds and indexes chunks whose vector write was deferred.
func (s *APIV1Service) Backfill(c echo.Context) error {
	req := &backfillRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	repaired, err := s.Writer.Backfill(c.Request().Context(), req.Limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"repaired": repaired})
}

// VerifyIntegrity reports cross-store consistency faults.
func (s *APIV1Service) VerifyIntegrity(c echo.Context) error {
	report, err := s.Writer.VerifyIntegrity(c.Request().Context())
	if err != nil && !errors.Is(err, store.ErrIntegrity) {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"faulty":                report != nil && report.Faulty(),
		"orphan_embedding_uids": report.OrphanEmbeddingUIDs,
		"missing_vector_uids":   report.MissingVectorUIDs,
	})
}

// mapError translates engine and store sentinels into HTTP statuses.
func mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConstraintViolation),
		errors.Is(err, store.ErrDimensionMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRetrievalTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, store.ErrIntegrity):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

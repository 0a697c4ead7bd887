// Package server exposes a read-only query API over a built extraction
// index: per-episode history lookups and ad hoc window queries. All data
// is loaded and indexed at startup; handlers never touch storage.
package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/meds/historian/internal/history"
	"github.com/meds/historian/internal/platform/telemetry"
)

// Handler answers history queries against immutable, pre-built indexes.
type Handler struct {
	logger    zerolog.Logger
	metrics   *telemetry.Provider
	episodes  map[string]history.Episode
	order     []string // episode ids in load order, for listing
	inpatient *history.Index
	ed        *history.Index
	opts      history.Options
}

// NewHandler builds a handler over prepared episodes and encounter
// records. The indexes are built once here; the handler treats them as
// immutable thereafter.
func NewHandler(logger zerolog.Logger, metrics *telemetry.Provider, episodes []history.Episode, inpatient, ed []history.Record, opts history.Options) *Handler {
	byID := make(map[string]history.Episode, len(episodes))
	order := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		if _, ok := byID[ep.ID]; !ok {
			order = append(order, ep.ID)
		}
		byID[ep.ID] = ep
	}
	return &Handler{
		logger:    logger,
		metrics:   metrics,
		episodes:  byID,
		order:     order,
		inpatient: history.BuildIndex(inpatient),
		ed:        history.BuildIndex(ed),
		opts:      opts,
	}
}

// RegisterRoutes mounts the query API.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", h.metrics.PrometheusHandler())
	e.GET("/episodes", h.ListEpisodes)
	e.GET("/episodes/:id/history", h.EpisodeHistory)
	e.GET("/history", h.AdHocHistory)
}

// Health reports liveness and index sizes.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"episodes":           len(h.episodes),
		"inpatient_records":  h.inpatient.Records(),
		"inpatient_patients": h.inpatient.Patients(),
		"ed_records":         h.ed.Records(),
	})
}

// ListEpisodes returns the loaded episode ids, paged.
func (h *Handler) ListEpisodes(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		offset = n
	}

	ids := h.order
	if offset > len(ids) {
		offset = len(ids)
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":    len(ids),
		"episodes": ids[offset:end],
	})
}

// EpisodeHistory answers the core question for one registered episode:
// which codes were recorded for its patient inside the lookback window.
// Query params days and mode override the run defaults per request.
func (h *Handler) EpisodeHistory(c echo.Context) error {
	ep, ok := h.episodes[c.Param("id")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}

	opts, err := h.requestOptions(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	w := history.ResolveWindow(ep.Start, opts.LookbackDays)
	matches := h.match(ep, w, opts)

	h.metrics.IncCounter("history.queries", "episode")
	return c.JSON(http.StatusOK, history.Result{
		EpisodeID: ep.ID,
		PatientID: ep.PatientID,
		StartDate: ep.Start,
		Codes:     history.UnionCodes(matches),
	})
}

// AdHocHistory answers a window query for a patient and start date that
// need not correspond to a registered episode. No self-exclusion applies
// because there is no source record to exclude.
func (h *Handler) AdHocHistory(c echo.Context) error {
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	startParam := c.QueryParam("start")
	if startParam == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "start is required")
	}
	start, err := history.ParseDate(startParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts, err := h.requestOptions(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ep := history.Episode{PatientID: patientID, Start: start}
	w := history.ResolveWindow(start, opts.LookbackDays)
	matches := h.match(ep, w, opts)

	h.metrics.IncCounter("history.queries", "adhoc")
	return c.JSON(http.StatusOK, history.Result{
		PatientID: patientID,
		StartDate: start,
		Codes:     history.UnionCodes(matches),
	})
}

func (h *Handler) match(ep history.Episode, w history.Window, opts history.Options) []history.Record {
	useInp, useED := opts.Mode.Sources(ep.Type)
	var matches []history.Record
	if useInp {
		matches = history.Match(h.inpatient.Partition(ep.PatientID), w, ep.ID, opts.Backend)
	}
	if useED {
		matches = append(matches, history.Match(h.ed.Partition(ep.PatientID), w, ep.ID, opts.Backend)...)
	}
	return matches
}

func (h *Handler) requestOptions(c echo.Context) (history.Options, error) {
	opts := h.opts
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("invalid days %q", v)
		}
		opts.LookbackDays = n
	}
	if v := c.QueryParam("mode"); v != "" {
		m, err := history.ParseFeatureMode(v)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	return opts, nil
}

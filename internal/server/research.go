package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/research"
)

var researchTracer = otel.Tracer("argus/internal/server/research")

// ResearchService is the slice of the research service the HTTP layer needs.
// Satisfied by *research.Service and by fakes in tests.
type ResearchService interface {
	Start(ctx context.Context, req research.Request) (research.Job, error)
	Status(ctx context.Context, id string) (research.StatusInfo, error)
	Result(ctx context.Context, id string) (research.Result, error)
	Cancel(ctx context.Context, id string) error
	Stream(id string) (<-chan events.Event, func())
}

// ResearchHandler exposes the research lifecycle over HTTP.
type ResearchHandler struct {
	svc    ResearchService
	cfg    config.ServerConfig
	logger *log.Logger
}

func NewResearchHandler(svc ResearchService, cfg config.ServerConfig) *ResearchHandler {
	return &ResearchHandler{
		svc:    svc,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

// Register mounts the research routes on the given group.
func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("", h.start)
	g.GET("/:id", h.result)
	g.GET("/:id/status", h.status)
	g.DELETE("/:id/cancel", h.cancel)
	g.GET("/:id/stream", h.stream)
}

type startResponse struct {
	ResearchID string `json:"research_id"`
	Status     string `json:"status"`
	TargetName string `json:"target_name"`
}

func (h *ResearchHandler) start(c echo.Context) error {
	ctx, span := researchTracer.Start(c.Request().Context(), "ResearchHandler.start")
	defer span.End()

	var req research.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.TargetName = strings.TrimSpace(req.TargetName)
	if req.TargetName == "" {
		span.SetStatus(codes.Error, "target_name required")
		return echo.NewHTTPError(http.StatusBadRequest, "target_name is required")
	}
	span.SetAttributes(attribute.String("target_name", req.TargetName))

	job, err := h.svc.Start(ctx, req)
	if err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.logger.Printf("research %s accepted for target %q", job.ID, job.TargetName)
	return c.JSON(http.StatusAccepted, startResponse{
		ResearchID: job.ID,
		Status:     job.Status,
		TargetName: job.TargetName,
	})
}

func (h *ResearchHandler) status(c echo.Context) error {
	info, err := h.svc.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, research.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "research not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (h *ResearchHandler) result(c echo.Context) error {
	res, err := h.svc.Result(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, research.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "research not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ResearchHandler) cancel(c echo.Context) error {
	err := h.svc.Cancel(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "cancellation_requested"})
	case errors.Is(err, research.ErrJobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "research not found")
	case errors.Is(err, research.ErrAlreadyTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// stream delivers run progress as Server-Sent Events. The subscription ends
// when the run reaches a terminal state (the hub closes the channel after the
// final done event) or when the client disconnects.
func (h *ResearchHandler) stream(c echo.Context) error {
	if !h.cfg.RunStreamEnabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run stream disabled")
	}
	req := c.Request()
	ctx, span := researchTracer.Start(req.Context(), "ResearchHandler.stream")
	defer span.End()
	id := c.Param("id")
	span.SetAttributes(attribute.String("research_id", id))

	if _, err := h.svc.Status(ctx, id); err != nil {
		if errors.Is(err, research.ErrJobNotFound) {
			span.SetStatus(codes.Error, "research not found")
			return echo.NewHTTPError(http.StatusNotFound, "research not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	feed, unsubscribe := h.svc.Stream(id)
	defer unsubscribe()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	ping := 30 * time.Second
	if h.cfg.StreamPingSeconds > 0 {
		ping = time.Duration(h.cfg.StreamPingSeconds) * time.Second
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := resp.Write([]byte("event: ping\ndata: {}\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, open := <-feed:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				span.RecordError(err)
				continue
			}
			name := "update"
			if ev.Node == "driver" && ev.Status == "done" {
				name = "done"
			}
			if _, err := resp.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

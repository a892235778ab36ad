package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arguslabs/argus/internal/graphdb"
)

// SubgraphSource is the slice of the graph store the HTTP layer needs.
type SubgraphSource interface {
	ResearchSubgraph(ctx context.Context, researchID string) (*graphdb.Subgraph, error)
	EntityConnections(ctx context.Context, name string) (string, error)
}

// GraphHandler serves read-only views of the identity graph.
type GraphHandler struct {
	graph SubgraphSource
}

func NewGraphHandler(graph SubgraphSource) *GraphHandler {
	return &GraphHandler{graph: graph}
}

func (h *GraphHandler) Register(g *echo.Group) {
	g.GET("/:id", h.subgraph)
	g.GET("/entity/:name/connections", h.connections)
}

func (h *GraphHandler) subgraph(c echo.Context) error {
	if h.graph == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "graph store not configured")
	}
	sub, err := h.graph.ResearchSubgraph(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *GraphHandler) connections(c echo.Context) error {
	if h.graph == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "graph store not configured")
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity name required")
	}
	summary, err := h.graph.EntityConnections(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"entity": name, "connections": summary})
}

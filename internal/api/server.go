// Package api exposes the kernel catalogue and the dispatch heuristics over
// HTTP for operators debugging shape-to-kernel decisions.
package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/mkleiven/rowwise/internal/backend"
	"github.com/mkleiven/rowwise/internal/kernels"
	"github.com/mkleiven/rowwise/internal/version"
)

type Server struct{}

func NewServer() *Server {
	return &Server{}
}

// NewEcho builds an echo instance with the goccy serializer installed and
// the server's routes registered.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.JSONSerializer = jsonSerializer{}
	NewServer().Register(e)
	return e
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/kernels", s.handleListKernels)
	e.POST("/v1/select/batched", s.handleSelectBatched)
	e.POST("/v1/select/grouped", s.handleSelectGrouped)
	e.GET("/v1/healthz", s.handleHealth)
}

func (s *Server) handleListKernels(c *echo.Context) error {
	kindParam := c.QueryParam("kind")
	kinds := []kernels.Kind{kernels.Batched, kernels.Grouped}
	if kindParam != "" {
		kind, err := kernels.ParseKind(kindParam)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		kinds = []kernels.Kind{kind}
	}

	resp := KernelListResponse{Object: "kernel.list", Kind: kindParam}
	for _, kind := range kinds {
		for _, entry := range kernels.Entries(kind) {
			resp.Kernels = append(resp.Kernels, kernelInfo(entry))
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSelectBatched(c *echo.Context) error {
	req, err := decodeJSON[SelectBatchedRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.B <= 0 || req.M <= 0 || req.N <= 0 || req.K <= 0 {
		return writeBadRequest(c, fmt.Sprintf("b, m, n and k must be positive, got b=%d m=%d n=%d k=%d", req.B, req.M, req.N, req.K))
	}

	entry := kernels.SelectBatched(req.B, req.M, req.N, req.K)
	return c.JSON(http.StatusOK, selection(entry, req.M, req.N, req.B))
}

func (s *Server) handleSelectGrouped(c *echo.Context) error {
	req, err := decodeJSON[SelectGroupedRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Shapes) == 0 {
		return writeBadRequest(c, "at least one group shape is required")
	}
	var maxM, maxN, maxK int
	for i, shape := range req.Shapes {
		if shape.M <= 0 || shape.N <= 0 || shape.K <= 0 {
			return writeBadRequest(c, fmt.Sprintf("shape %d: m, n and k must be positive, got m=%d n=%d k=%d", i, shape.M, shape.N, shape.K))
		}
		if shape.N < kernels.MinGroupedN || shape.K < kernels.MinGroupedK {
			return writeBadRequest(c, fmt.Sprintf("shape %d: n=%d k=%d below grouped kernel minimum n>=%d k>=%d", i, shape.N, shape.K, kernels.MinGroupedN, kernels.MinGroupedK))
		}
		maxM = max(maxM, shape.M)
		maxN = max(maxN, shape.N)
		maxK = max(maxK, shape.K)
	}

	var entry kernels.Entry
	if req.Kernel != "" {
		entry, err = kernels.Lookup(kernels.Grouped, req.Kernel)
		if err != nil {
			return writeNotFound(c, err.Error())
		}
	} else {
		entry = kernels.SelectGrouped(maxM, maxN, maxK)
	}
	return c.JSON(http.StatusOK, selection(entry, maxM, maxN, len(req.Shapes)))
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  version.String(),
		Backends: backend.Available(),
	})
}

func kernelInfo(e kernels.Entry) KernelInfo {
	schedule := "cooperative"
	if e.Cfg.Pingpong {
		schedule = "pingpong"
	}
	return KernelInfo{
		Name:     e.Name,
		Kind:     e.Kind.String(),
		TileM:    e.Cfg.TileM,
		TileN:    e.Cfg.TileN,
		TileK:    e.Cfg.TileK,
		ClusterM: e.Cfg.ClusterM,
		ClusterN: e.Cfg.ClusterN,
		ClusterK: e.Cfg.ClusterK,
		Schedule: schedule,
	}
}

func selection(e kernels.Entry, m, n, z int) SelectionResponse {
	grid := e.LaunchGrid(m, n, z)
	block := e.BlockDim()
	return SelectionResponse{
		ID:     "sel_" + uuid.NewString(),
		Object: "kernel.selection",
		Kind:   e.Kind.String(),
		Kernel: kernelInfo(e),
		Grid:   Extent{X: grid.X, Y: grid.Y, Z: grid.Z},
		Block:  Extent{X: block.X, Y: block.Y, Z: block.Z},
	}
}

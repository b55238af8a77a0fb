// Package diagserver exposes a cache's observer view as JSON over HTTP,
// mirroring the teacher's use of gin for its model-serving API but scaled
// down to this component's read-only diagnostic surface.
package diagserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferd/kvcache/kvcache"
)

// Server serves the observer view of one or more registered caches.
type Server struct {
	router *gin.Engine
	caches map[string]*kvcache.Cache
	nSeqMax int
}

// New creates a diagnostics server. nSeqMax bounds how many sequence ids
// are reported per cell in the rendered view.
func New(nSeqMax int) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		caches:  make(map[string]*kvcache.Cache),
		nSeqMax: nSeqMax,
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/v1/cache/:id/view", s.viewHandler)
	s.router.GET("/v1/cache", s.listHandler)

	return s
}

// Register makes c's view available at /v1/cache/:id/view under the given
// id.
func (s *Server) Register(id string, c *kvcache.Cache) {
	s.caches[id] = c
}

// Handler returns the underlying http.Handler, for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) listHandler(c *gin.Context) {
	ids := make([]string, 0, len(s.caches))
	for id := range s.caches {
		ids = append(ids, id)
	}
	c.JSON(http.StatusOK, gin.H{"caches": ids})
}

type viewResponse struct {
	NCells           int     `json:"n_cells"`
	TokenCount       int32   `json:"token_count"`
	UsedCells        int32   `json:"used_cells"`
	MaxContiguous    int32   `json:"max_contiguous"`
	MaxContiguousIdx int32   `json:"max_contiguous_idx"`
	CellPos          []int32 `json:"cell_pos"`
	CellSeqIDs       []int32 `json:"cell_seq_ids"`
	NSeqMax          int     `json:"n_seq_max"`
}

func (s *Server) viewHandler(c *gin.Context) {
	id := c.Param("id")
	cache, ok := s.caches[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cache id"})
		return
	}

	view := kvcache.NewView(s.nSeqMax)
	view.Update(cache)

	c.JSON(http.StatusOK, viewResponse{
		NCells:           view.NCells,
		TokenCount:       view.TokenCount,
		UsedCells:        view.UsedCells,
		MaxContiguous:    view.MaxContiguous,
		MaxContiguousIdx: view.MaxContiguousIdx,
		CellPos:          view.CellPos,
		CellSeqIDs:       view.CellSeqIDs,
		NSeqMax:          view.NSeqMax,
	})
}

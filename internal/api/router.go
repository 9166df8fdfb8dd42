package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/CryptoCourier/internal/collector"
	"github.com/LJTian/CryptoCourier/internal/pipeline"
	"github.com/LJTian/CryptoCourier/internal/storage"
)

const queryTimeout = 5 * time.Second

// StateView 提供最近一次运行的快照，不会阻塞在途的采集
type StateView interface {
	Snapshot() pipeline.Snapshot
}

// HistoryLister 由 storage.History 实现；未配置数据库时传 nil
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int, date string) ([]storage.Post, error)
	LatestPrices(ctx context.Context) ([]collector.PriceQuote, error)
}

type Server struct {
	state   StateView
	history HistoryLister
}

func NewServer(state StateView, history HistoryLister) *Server {
	return &Server{state: state, history: history}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	// 存活探针：采集进行中也必须立即响应
	r.GET("/", s.health)
	r.HEAD("/", s.health)
	r.GET("/health", s.health)
	r.HEAD("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/state", s.getState)
		v1.GET("/posts", s.listPosts)
		v1.GET("/prices", s.latestPrices)
	}
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) getState(c *gin.Context) {
	if s.state == nil {
		unavailable(c, "state not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.state.Snapshot(),
	})
}

func (s *Server) listPosts(c *gin.Context) {
	if s.history == nil {
		unavailable(c, "history storage not configured")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": "date must be YYYY-MM-DD",
			})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	items, err := s.history.ListRecent(ctx, limit, date)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) latestPrices(c *gin.Context) {
	if s.history == nil {
		unavailable(c, "history storage not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	quotes, err := s.history.LatestPrices(ctx)
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    quotes,
	})
}

func unavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":    "unavailable",
		"message": msg,
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

// Package main runs the backtest service: REST and gRPC front ends over the
// simulation engine, with candles in ClickHouse and equity curves stored per
// run.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "backtest/proto"
	"backtest/services/arrowpipeline"
	"backtest/services/clickhouse"
	"backtest/services/config"
	"backtest/services/engine"
	"backtest/strategies"
)

// BacktestService runs simulations against candles stored in ClickHouse.
type BacktestService struct {
	pb.UnimplementedBacktestServiceServer
	store    *clickhouse.Client
	pipeline *arrowpipeline.Pipeline
	logger   *zap.Logger
	cfg      config.Config

	mu   sync.RWMutex
	done map[string]*pb.BacktestResponse
	runs map[string]uuid.UUID
}

func NewBacktestService(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BacktestService, error) {
	store, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open candle store: %w", err)
	}
	return &BacktestService{
		store:    store,
		pipeline: arrowpipeline.NewPipeline(logger),
		logger:   logger,
		cfg:      cfg,
		done:     make(map[string]*pb.BacktestResponse),
		runs:     make(map[string]uuid.UUID),
	}, nil
}

// ExecuteBacktest loads the requested candle range, runs the simulation and
// persists the resulting equity curve under a fresh run id.
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *pb.BacktestRequest) (*pb.BacktestResponse, error) {
	started := time.Now()
	runID := uuid.New()

	s.logger.Info("starting backtest",
		zap.String("job_id", runID.String()),
		zap.String("symbol", req.Symbol),
		zap.String("strategy", req.Strategy),
		zap.Int64("start_time", req.StartTime),
		zap.Int64("end_time", req.EndTime),
	)

	bars, err := s.store.QueryBars(ctx, req.Symbol, uint32(req.Periods), uint64(req.StartTime), uint64(req.EndTime))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no candles stored for %s periods=%d in [%d, %d]",
			req.Symbol, req.Periods, req.StartTime, req.EndTime)
	}
	ticks := clickhouse.Ticks(bars)

	sim := engine.NewSimulator(engine.NewTickSource(ticks), s.initialCash(req), engine.Config{
		Slippage:        s.slippage(req),
		MinutesToExpire: s.minutesToExpire(req),
		PriceTick:       s.priceTick(req),
	})
	strategy, err := buildStrategy(req, ticks)
	if err != nil {
		return nil, err
	}
	runner := engine.NewRunner(sim, strategy, s.flatThreshold(req))
	if err := runner.Run(); err != nil {
		s.logger.Error("backtest failed",
			zap.String("job_id", runID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	snaps := sim.Snapshots().All()
	if err := s.store.InsertEquityCurve(ctx, runID, req.Symbol, snaps); err != nil {
		return nil, err
	}

	resp := buildResponse(runID, req.Symbol, sim)
	s.mu.Lock()
	s.done[runID.String()] = resp
	s.runs[runID.String()] = runID
	s.mu.Unlock()

	s.logger.Info("backtest completed",
		zap.String("job_id", runID.String()),
		zap.Duration("execution_time", time.Since(started)),
		zap.Int("ticks", resp.Ticks),
		zap.Float64("final_valuation", resp.FinalValuation),
	)
	return resp, nil
}

func buildStrategy(req *pb.BacktestRequest, ticks []engine.Tick) (engine.Strategy, error) {
	horizon := 4 * time.Hour
	switch req.Strategy {
	case "", "sma_cross":
		return strategies.NewSMACross(ticks, 20, 50, 0.5, horizon), nil
	case "random_flip":
		return strategies.NewRandomFlip(ticks, req.Seed, 0.5, horizon), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
}

func buildResponse(runID uuid.UUID, symbol string, sim *engine.Simulator) *pb.BacktestResponse {
	archived := sim.ArchivedOrders()
	orders := make([]*pb.OrderRecord, len(archived))
	for i, o := range archived {
		orders[i] = &pb.OrderRecord{
			Id:             o.ID,
			Timestamp:      o.Timestamp.Unix(),
			Side:           o.Side.String(),
			Type:           o.Type.String(),
			Size:           o.Size,
			Price:          o.Price,
			Status:         o.Result.Status.String(),
			CompletionTime: o.Result.CompletionTime.Unix(),
			CashDiff:       o.Result.CashDiff,
			PositionDiff:   o.Result.PositionDiff,
		}
	}

	snaps := sim.Snapshots().All()
	curve := make([]*pb.EquityPoint, len(snaps))
	for i, p := range snaps {
		curve[i] = &pb.EquityPoint{
			Timestamp: p.Timestamp.Unix(),
			Cash:      p.Cash,
			Position:  p.Position,
			Valuation: p.Valuation,
		}
	}

	return &pb.BacktestResponse{
		JobId:          runID.String(),
		Symbol:         symbol,
		Ticks:          len(snaps),
		FinalValuation: sim.State().Valuation,
		Orders:         orders,
		EquityCurve:    curve,
	}
}

func (s *BacktestService) initialCash(req *pb.BacktestRequest) float64 {
	if req.InitialCash > 0 {
		return req.InitialCash
	}
	return s.cfg.InitialCash
}

func (s *BacktestService) slippage(req *pb.BacktestRequest) float64 {
	if req.Slippage > 0 {
		return req.Slippage
	}
	return s.cfg.Slippage
}

func (s *BacktestService) minutesToExpire(req *pb.BacktestRequest) int {
	if req.MinutesToExpire > 0 {
		return req.MinutesToExpire
	}
	return s.cfg.MinutesToExpire
}

func (s *BacktestService) priceTick(req *pb.BacktestRequest) float64 {
	if req.PriceTick > 0 {
		return req.PriceTick
	}
	return s.cfg.PriceTick
}

func (s *BacktestService) flatThreshold(req *pb.BacktestRequest) float64 {
	if req.FlatThreshold > 0 {
		return req.FlatThreshold
	}
	return s.cfg.FlatThreshold
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/backtest/:job_id/equity.arrow", s.handleGetEquityArrow)
		api.GET("/health", s.handleHealthCheck)
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req pb.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ExecuteBacktest(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("backtest request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	jobID := c.Param("job_id")
	s.mu.RLock()
	resp, ok := s.done[jobID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetEquityArrow serves a finished run's equity curve as an Arrow IPC
// stream, reloaded from storage.
func (s *BacktestService) handleGetEquityArrow(c *gin.Context) {
	jobID := c.Param("job_id")
	s.mu.RLock()
	runID, ok := s.runs[jobID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}

	snaps, err := s.store.QueryEquityCurve(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := s.pipeline.EncodeEquityCurve(snaps)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	service, err := NewBacktestService(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("create backtest service", zap.Error(err))
	}
	defer service.store.Close()

	grpcServer := grpc.NewServer()
	pb.RegisterBacktestServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())
	service.setupHTTPRoutes(httpRouter)

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen on gRPC addr", zap.Error(err))
		}
		logger.Info("starting gRPC server", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := httpRouter.Run(cfg.HTTPAddr); err != nil {
			logger.Fatal("serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down servers")
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
}

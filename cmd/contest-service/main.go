package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	commonmw "arbiter/internal/common/http/middleware"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	contestrepo "arbiter/internal/contest/repository"
	dispatchctrl "arbiter/internal/dispatch/controller"
	dispatchservice "arbiter/internal/dispatch/service"
	judgerrepo "arbiter/internal/judger/repository"
	judgerservice "arbiter/internal/judger/service"
	problemrepo "arbiter/internal/problem/repository"
	scoreboardctrl "arbiter/internal/scoreboard/controller"
	scoreboardrepo "arbiter/internal/scoreboard/repository"
	scoreboardservice "arbiter/internal/scoreboard/service"
	submissionctrl "arbiter/internal/submission/controller"
	submissionrepo "arbiter/internal/submission/repository"
	submissionservice "arbiter/internal/submission/service"
	"arbiter/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/contest_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var producer mq.Producer
	if !appCfg.Dispatch.DisableEvents {
		kafkaProducer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = kafkaProducer.Close()
		}()
		producer = kafkaProducer
	}

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	submissions := submissionrepo.NewSubmissionRepository(mysqlDB)
	problems := problemrepo.NewProblemRepository(mysqlDB, redisCache)
	contests := contestrepo.NewContestRepository(mysqlDB, redisCache)
	judgers := judgerrepo.NewJudgerRepository(mysqlDB)
	usernames := scoreboardrepo.NewUsernameLookup(mysqlDB)

	judgerSvc, err := judgerservice.NewJudgerService(judgerservice.Config{
		Repo:         judgers,
		Cache:        redisCache,
		OnlineWindow: appCfg.Judger.OnlineWindow,
	})
	if err != nil {
		logger.Error(context.Background(), "init judger service failed", zap.Error(err))
		return
	}

	dispatchSvc, err := dispatchservice.NewDispatchService(dispatchservice.Config{
		Submissions:        submissions,
		Problems:           problems,
		Storage:            objStorage,
		DataBucket:         appCfg.MinIO.Bucket,
		DataRoot:           appCfg.Dispatch.DataRoot,
		Producer:           producer,
		VerdictTopic:       appCfg.Dispatch.VerdictTopic,
		SkipOwnershipCheck: appCfg.Dispatch.SkipOwnershipCheck,
	})
	if err != nil {
		logger.Error(context.Background(), "init dispatch service failed", zap.Error(err))
		return
	}

	submissionSvc, err := submissionservice.NewSubmissionService(submissionservice.Config{
		Submissions:  submissions,
		Problems:     problems,
		Contests:     contests,
		Languages:    appCfg.Submission.Languages,
		MaxBodyBytes: appCfg.Submission.MaxBodyBytes,
	})
	if err != nil {
		logger.Error(context.Background(), "init submission service failed", zap.Error(err))
		return
	}

	scoreboardSvc, err := scoreboardservice.NewScoreboardService(scoreboardservice.Config{
		Contests:    contests,
		Submissions: submissions,
		Usernames:   usernames,
	})
	if err != nil {
		logger.Error(context.Background(), "init scoreboard service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, dispatchSvc, judgerSvc, submissionSvc, scoreboardSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "contest http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(
	cfg *AppConfig,
	dispatchSvc *dispatchservice.DispatchService,
	judgerSvc *judgerservice.JudgerService,
	submissionSvc *submissionservice.SubmissionService,
	scoreboardSvc *scoreboardservice.ScoreboardService,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	adminAuth := commonmw.AdminAuthMiddleware(cfg.Admin.middlewareConfig())

	judgerController := dispatchctrl.NewJudgerController(dispatchSvc, judgerSvc)
	judgerAuth := dispatchctrl.JudgerAuthMiddleware(judgerSvc)
	judgerAPI := router.Group("/api/v1/judger", judgerAuth)
	judgerAPI.POST("/poll", judgerController.Poll)
	judgerAPI.POST("/report", judgerController.Report)
	judgerAPI.POST("/heartbeat", judgerController.Heartbeat)
	judgerAPI.GET("/file", judgerController.File)
	router.GET("/api/v1/judgers", adminAuth, judgerController.ListJudgers)
	router.POST("/api/v1/judgers", adminAuth, judgerController.RegisterJudger)

	submissionController := submissionctrl.NewSubmissionController(submissionSvc, dispatchSvc)
	submissionAPI := router.Group("/api/v1/submissions")
	submissionAPI.POST("", submissionController.Create)
	submissionAPI.GET("", submissionController.List)
	submissionAPI.GET("/:id", submissionController.Get)
	submissionAPI.POST("/:id/rejudge", adminAuth, submissionController.Rejudge)

	scoreboardController := scoreboardctrl.NewScoreboardController(scoreboardSvc)
	router.GET("/api/v1/contests/:id/scoreboard", scoreboardController.Get)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

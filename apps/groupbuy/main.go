package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"optifish/apps/groupbuy/checkout"
	"optifish/apps/groupbuy/events"
	"optifish/apps/groupbuy/handler"
	"optifish/apps/groupbuy/middleware"
	"optifish/apps/groupbuy/store"
	"optifish/apps/groupbuy/sweeper"
	"optifish/pkg/config"
	"optifish/pkg/database"
	"optifish/pkg/discovery"
	"optifish/pkg/jwt"
	"optifish/pkg/logger"
	"optifish/pkg/tracer"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	logger.Init(logger.Options{Service: "optifish-groupbuy"})
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("group buy service exited with error")
		os.Exit(1)
	}
}

// newHTTPServer ties every request context to base, so long-lived streams end
// when base is cancelled instead of holding Shutdown open.
func newHTTPServer(base context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

func run() error {
	// 1. 加载配置
	c, err := config.LoadConfig(".")
	if err != nil {
		return pkgerrors.Wrap(err, "load config")
	}
	logger.Init(logger.Options{Production: c.IsProduction(), Service: c.Service.Name})

	tp, err := tracer.InitTracer(c.Service.Name, c.Tracer.Endpoint, c.Service.Env)
	if err != nil {
		return pkgerrors.Wrap(err, "init tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// 2. 初始化数据库
	db, err := database.InitMySQL(c.Mysql, c.IsProduction())
	if err != nil {
		return err
	}
	if err := store.Migrate(db); err != nil {
		return pkgerrors.Wrap(err, "migrate")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return pkgerrors.Wrap(err, "get sql.DB")
	}
	defer sqlDB.Close()

	rdb, err := database.InitRedis(c.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var publisher events.Publisher = events.Nop{}
	if c.RabbitMQ.URL != "" {
		amqpPub, err := events.DialAMQP(c.RabbitMQ.URL, c.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	// 3. 组装业务
	st := store.New(db, store.WithWindow(c.GroupBuy.Window), store.WithPublisher(publisher))
	coOpts := []checkout.Option{checkout.WithPublisher(publisher)}
	if rdb != nil {
		coOpts = append(coOpts, checkout.WithIdempotency(checkout.NewRedisIdempotency(rdb, c.GroupBuy.IdempotencyTTL, c.GroupBuy.IdempotencyLease)))
	}
	co := checkout.New(db, st, coOpts...)

	if err := middleware.InitSentinel(c.Service.Name, middleware.ResJoin, c.GroupBuy.JoinQPS); err != nil {
		return pkgerrors.Wrap(err, "init sentinel")
	}

	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.New(st, co), handler.RouterConfig{
		ServiceName: c.Service.Name,
		Tokens:      jwt.NewManager(c.Jwt.Secret, c.Jwt.Issuer, c.Jwt.TTL),
		Health:      sqlDB.PingContext,
	})

	// 4. gRPC 健康检查, consul 通过它判断存活
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	healthSrv.SetServingStatus(c.Service.Name, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.Service.GrpcPort))
	if err != nil {
		return pkgerrors.Wrap(err, "listen grpc")
	}

	var reg *discovery.Registration
	if c.Consul.Address != "" {
		reg, err = discovery.RegisterService(c.Service.Name, c.Service.Port, c.Service.GrpcPort, c.Consul.Address)
		if err != nil {
			lis.Close()
			return pkgerrors.Wrap(err, "register service")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	srv := newHTTPServer(gctx, fmt.Sprintf(":%d", c.Service.Port), router)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("group buy HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", lis.Addr().String()).Msg("group buy gRPC health listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return sweeper.New(st, c.GroupBuy.SweepInterval).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		healthSrv.Shutdown()
		if err := reg.Deregister(); err != nil {
			logger.Warn().Err(err).Msg("consul deregister failed")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"optifish/pkg/logger"

	_ "github.com/mbobakov/grpc-consul-resolver"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// probe 通过 consul 解析服务地址并调用 gRPC 健康检查
func main() {
	consulAddr := flag.String("consul", envOr("CONSUL_ADDRESS", "127.0.0.1:8500"), "consul agent address")
	service := flag.String("service", envOr("SERVICE_NAME", "optifish-groupbuy"), "registered service name")
	timeout := flag.Duration("timeout", 5*time.Second, "overall deadline")
	flag.Parse()

	logger.Init(logger.Options{Service: "optifish-probe"})

	target := fmt.Sprintf("consul://%s/%s?wait=14s", *consulAddr, *service)
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy": "round_robin"}`),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		logger.Fatal().Err(err).Str("target", target).Msg("dial failed")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: *service}, grpc.WaitForReady(true))
	if err != nil {
		logger.Error().Err(err).Str("service", *service).Msg("health check failed")
		os.Exit(1)
	}
	logger.Info().Str("service", *service).Str("status", resp.GetStatus().String()).Msg("health check")
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

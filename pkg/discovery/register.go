package discovery

import (
	"fmt"
	"net"

	"optifish/pkg/logger"

	"github.com/hashicorp/consul/api"
)

// Registration is a live consul entry; call Deregister on shutdown.
type Registration struct {
	client *api.Client
	ID     string
}

// RegisterService registers the HTTP API under serviceName with a gRPC health
// check on grpcPort, so consul and the probe CLI agree on liveness.
func RegisterService(serviceName string, httpPort, grpcPort int, consulAddr string) (*Registration, error) {
	config := api.DefaultConfig()
	config.Address = consulAddr
	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	localIP, err := getOutboundIP()
	if err != nil {
		return nil, err
	}

	serviceID := fmt.Sprintf("%s-%s-%d", serviceName, localIP, httpPort)

	registration := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Port:    grpcPort,
		Address: localIP,
		Tags:    []string{"optifish", "groupbuy", "grpc"},
		Meta:    map[string]string{"http_port": fmt.Sprint(httpPort)},
		Check: &api.AgentServiceCheck{
			GRPC:                           fmt.Sprintf("%s:%d/%s", localIP, grpcPort, serviceName),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, err
	}

	logger.Info().Str("service", serviceName).Str("id", serviceID).
		Str("addr", fmt.Sprintf("%s:%d", localIP, grpcPort)).Msg("registered in consul")
	return &Registration{client: client, ID: serviceID}, nil
}

func (r *Registration) Deregister() error {
	if r == nil {
		return nil
	}
	return r.client.Agent().ServiceDeregister(r.ID)
}

// getOutboundIP 获取本机对外 IP
// 容器内不能注册 127.0.0.1
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// Command deviceclientdemo wires the device client core up against the
// gRPC reference transport end to end: it starts an in-memory gateway
// server, dials a transport against it, attaches a client, sends one
// telemetry event, and logs whatever the gateway pushes back until
// interrupted.
package main

import (
	"context"
	"flag"
	"net"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/azdevice/deviceclient"
	"github.com/azdevice/deviceclient/diagnostics"
	"github.com/azdevice/deviceclient/dispatch"
	"github.com/azdevice/deviceclient/identity"
	"github.com/azdevice/deviceclient/transport"
	"github.com/azdevice/deviceclient/transport/grpctransport"
)

type platformInfo struct{ goVersion string }

func (p platformInfo) Describe() string { return p.goVersion }

func main() {
	var (
		listenAddr   = flag.String("listen", "127.0.0.1:0", "address the in-memory gateway server listens on")
		deviceID     = flag.String("device-id", "demo-device", "device id presented to the gateway")
		hubHost      = flag.String("hub-host", "demo.azure-devices.net", "hub host name presented to the gateway")
		otlpEndpoint = flag.String("otlp-endpoint", "", "OTLP gRPC collector endpoint; empty disables tracing export")
		tickInterval = flag.Duration("tick", 500*time.Millisecond, "interval between driver-loop ticks")
	)
	flag.Parse()

	log := deviceclient.StdLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := grpctransport.InitTracing(ctx, grpctransport.TracingConfig{
		ServiceName:    "deviceclientdemo",
		ServiceVersion: diagnostics.SDKVersion,
		OTLPEndpoint:   *otlpEndpoint,
	})
	if err != nil {
		log.Error("tracing_init_failed", "error", err)
		return
	}
	defer shutdownTracing(context.Background())

	backend := grpctransport.NewInMemoryBackend()
	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Error("listen_failed", "error", err)
		return
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpctransport.NewServer(backend).Register(grpcServer)
	go grpcServer.Serve(listener)
	defer grpcServer.GracefulStop()

	tr, err := grpctransport.Dial(ctx, listener.Addr().String(), *deviceID, *hubHost)
	if err != nil {
		log.Error("dial_failed", "error", err)
		return
	}

	id := &identity.Identity{
		HubName:   firstDotSegment(*hubHost),
		HubSuffix: afterFirstDot(*hubHost),
		DeviceID:  *deviceID,
		Provider:  identity.ProviderMQTT,
	}
	authz := demoAuthorization{}

	client, err := deviceclient.NewFromIdentity(ctx, id, authz, tr, false, platformInfo{goVersion: "deviceclientdemo/1.0"}, log)
	if err != nil {
		log.Error("client_construction_failed", "error", err)
		return
	}
	defer client.Destroy()

	if err := client.SetMessageCallback(func(body []byte, props map[string]string) dispatch.Disposition {
		log.Info("c2d_message_received", "body", string(body))
		return dispatch.DispositionAccepted
	}); err != nil {
		log.Warn("set_message_callback_failed", "error", err)
	}

	if err := client.SendEventAsync(&transport.Message{Body: []byte("hello from deviceclientdemo")},
		func(confirmation transport.Confirmation, userCtx any) {
			log.Info("telemetry_confirmed", "confirmation", string(confirmation))
		}, nil); err != nil {
		log.Warn("send_event_failed", "error", err)
	}

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting_down")
			return
		case <-ticker.C:
			client.DoWork(ctx)
		}
	}
}

func firstDotSegment(hostName string) string {
	for i, r := range hostName {
		if r == '.' {
			return hostName[:i]
		}
	}
	return hostName
}

func afterFirstDot(hostName string) string {
	for i, r := range hostName {
		if r == '.' {
			return hostName[i+1:]
		}
	}
	return ""
}

// demoAuthorization is the minimal in-process Authorization this demo
// uses in place of a real shared-key or x.509 credential.
type demoAuthorization struct{}

func (demoAuthorization) TrustBundle() ([]byte, error)           { return nil, nil }
func (demoAuthorization) SetSASTokenLifetime(d time.Duration)    {}
func (demoAuthorization) SetSASTokenRefreshTime(d time.Duration) {}
func (demoAuthorization) Destroy()                               {}

var _ diagnostics.PlatformInfo = platformInfo{}

package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cmdUtil "github.com/tensornet/gate/cmd/util"
	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
	"github.com/tensornet/gate/rpc/server"
	"github.com/tensornet/gate/rpc/transport"
	transporthttp "github.com/tensornet/gate/rpc/transport/http"
	"github.com/tensornet/gate/rpc/transport/tcp"
	"github.com/tensornet/gate/rpc/transport/unix"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the gateway",
		Long:    `Start the compute gateway with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is GATE_<flag> (e.g. GATE_NUM_HANDLERS=4)`,
		PreRunE: processConfig,
		RunE:    run,
	}

	// expertRe matches one expert definition, e.g. "expert0=double(2)"
	expertRe = regexp.MustCompile(`^([^=]+)=([a-z]+)\((\d+)\)$`)
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "experts"
	ServeCmd.PersistentFlags().String(key, "expert0=double(2)", cmdUtil.WrapString("Comma-separated list of experts to serve. Format: UID=KIND(DIM) where KIND is one of: double, relu, identity"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the gateway will listen (e.g. localhost:8080, /tmp/gate.sock, ...)"))

	key = "num-handlers"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Number of connection handlers sharing the endpoint (tcp only, other transports serve with one handler)"))

	key = "max-message-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxMessageSize, cmdUtil.WrapString("The largest accepted frame payload in bytes. Streamed fragments are capped at half this value"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Per-read/write socket deadline in seconds (0 disables it)"))

	key = "compression"
	ServeCmd.PersistentFlags().String(key, "none", cmdUtil.WrapString("Compression applied to response tensors (none, float16)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address to expose Prometheus metrics on (empty disables metrics)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse experts
	expertsConfig := viper.GetString("experts")
	serveCmdConfig.Experts = []common.ExpertConf{}
	for _, expertConfig := range strings.Split(expertsConfig, ",") {
		m := expertRe.FindStringSubmatch(strings.TrimSpace(expertConfig))
		if m == nil {
			return fmt.Errorf("invalid expert format: %s (expected UID=KIND(DIM))", expertConfig)
		}

		dim, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil || dim == 0 {
			return fmt.Errorf("invalid expert dimension %s: must be a positive number", m[3])
		}

		serveCmdConfig.Experts = append(serveCmdConfig.Experts, common.ExpertConf{
			Uid:  m[1],
			Kind: m[2],
			Dim:  dim,
		})
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.NumHandlers = viper.GetInt("num-handlers")
	serveCmdConfig.MaxMessageSize = viper.GetInt("max-message-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.NumHandlers < 1 {
		return fmt.Errorf("num-handlers must be at least 1")
	}
	if _, err := tensor.ParseCompression(viper.GetString("compression")); err != nil {
		return err
	}

	return nil
}

// run starts the gateway
func run(_ *cobra.Command, _ []string) error {
	// initialize logging
	common.InitLoggers(*serveCmdConfig)
	fmt.Println(serveCmdConfig.String())

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// transport factory, every handler gets its own transport instance
	var newTransport func() transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		newTransport = transporthttp.NewHttpServerTransport
	case "tcp":
		newTransport = tcp.NewTCPServerTransport
	case "unix":
		newTransport = unix.NewUnixServerTransport
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	// Only tcp listeners can share one endpoint via SO_REUSEPORT
	if viper.GetString("transport") != "tcp" && serveCmdConfig.NumHandlers > 1 {
		server.Logger.Warningf("Transport %s cannot share an endpoint, serving with one handler", viper.GetString("transport"))
		serveCmdConfig.NumHandlers = 1
	}

	// build the expert registry
	compression, _ := tensor.ParseCompression(viper.GetString("compression"))
	registry := expert.NewRegistry()
	defer registry.Close()

	for _, conf := range serveCmdConfig.Experts {
		backend, err := expert.NewFromKind(conf.Uid, conf.Kind, conf.Dim, compression)
		if err != nil {
			return err
		}
		if err := registry.Register(backend); err != nil {
			return err
		}
	}

	// optionally expose Prometheus metrics
	if serveCmdConfig.MetricsEndpoint != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
				metrics.WritePrometheus(w, true)
			})
			if err := http.ListenAndServe(serveCmdConfig.MetricsEndpoint, mux); err != nil {
				server.Logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start the handlers, each with its own transport bound to the endpoint
	handlers := make([]*server.ConnectionHandler, serveCmdConfig.NumHandlers)
	runErrs := make(chan error, len(handlers))

	for i := range handlers {
		handlers[i] = server.NewConnectionHandler(i, *serveCmdConfig, newTransport(), s, registry)
		go func(h *server.ConnectionHandler) {
			runErrs <- h.Run(ctx)
		}(handlers[i])
	}

	// wait for every handler's readiness signal before declaring the
	// gateway up
	for _, h := range handlers {
		if err := <-h.Ready(); err != nil {
			stop()
			return err
		}
	}
	server.Logger.Infof("Gateway ready: %d handlers on %s serving %d experts",
		len(handlers), serveCmdConfig.Transport.Endpoint, len(serveCmdConfig.Experts))

	// wait for all handlers to exit
	var firstErr error
	for range handlers {
		if err := <-runErrs; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	return firstErr
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("gate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/txlock/lib/container"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/common"
	"github.com/ValentinKolb/txlock/rpc/serializer"
	"github.com/ValentinKolb/txlock/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the container that owns the shard's lock table and the adapter
// that handles requests for it
type serverShard struct {
	Container *container.Container
	Adapter   IRPCServerAdapter
}

// RPCServer hosts one container per configured shard and serves them over
// a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	mu            sync.Mutex
	metricsServer *http.Server
	closed        bool
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// Container returns the container of a shard, nil if the shard does not exist
func (s *RPCServer) Container(shardID uint64) *container.Container {
	shard, ok := s.shards.Load(shardID)
	if !ok {
		return nil
	}
	return shard.Container
}

// Serve starts the RPC server
// This function will also initialize the shards, start the metrics endpoint
// and the transport layer. It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and the metrics endpoint, then closes all
// containers. Lock requests still waiting fail with lockmgr.ErrInterrupted.
func (s *RPCServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	metricsServer := s.metricsServer
	s.mu.Unlock()

	errs := []error{s.transport.Close()}
	if metricsServer != nil {
		errs = append(errs, metricsServer.Close())
	}

	s.shards.Range(func(shardID uint64, shard serverShard) bool {
		shard.Container.Close()
		return true
	})

	Logger.Infof("RPC Server closed")
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of shards. Each shard has
		its own container, so transactions and lock names of different shards
		never interact.
	*/

	for _, shardConfig := range s.config.Shards {
		var strategy lockmgr.LockStrategy
		switch shardConfig.Type {
		case common.ShardTypeExclusive:
			strategy = lockmgr.ExclusiveLockStrategy
		case common.ShardTypeNull:
			strategy = lockmgr.NullLockStrategy
		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		shard := serverShard{
			Container: container.NewContainer(fmt.Sprintf("shard-%d", shardConfig.ShardID), strategy),
			Adapter:   NewContainerServerAdapter(),
		}
		if _, loaded := s.shards.LoadOrStore(shardConfig.ShardID, shard); loaded {
			shard.Container.Close()
			return fmt.Errorf("shard %d is configured twice", shardConfig.ShardID)
		}
		Logger.Infof("created %s container for shard %d", strategy.Name(), shardConfig.ShardID)
	}

	if s.config.MetricsEndpoint != "" {
		if err := s.serveMetrics(); err != nil {
			return err
		}
	}

	Logger.Infof("txlock setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// serveMetrics exposes all metrics in the prometheus text format
func (s *RPCServer) serveMetrics() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("server is closed")
	}
	s.metricsServer = srv
	s.mu.Unlock()

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return nil
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		start := time.Now()

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		// Case shard does not exist -> error
		if !ok {
			respMsg = *common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId), uint8(lockmgr.RetCInvalidOperation))
		} else {
			// Decode the request
			err := s.serializer.Deserialize(req, &msg)

			if err != nil {
				respMsg = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err), uint8(lockmgr.RetCInternalError))
			} else {
				// Let the adapter handle the request
				respMsg = *shard.Adapter.Handle(&msg, shard.Container)
			}
		}

		requestCounter(msg.MsgType, respMsg.Err != "").Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`txlock_rpc_request_seconds{type=%q}`, msg.MsgType)).UpdateDuration(start)

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(
				fmt.Sprintf("failed to serialize response: %s", err), uint8(lockmgr.RetCInternalError)))
		}
		return val
	})
}

// requestCounter returns the counter of handled requests by type and outcome
func requestCounter(t common.MessageType, failed bool) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`txlock_rpc_requests_total{type=%q,failed="%t"}`, t, failed))
}

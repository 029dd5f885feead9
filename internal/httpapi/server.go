package httpapi

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/saymain/echokit-server/internal/config"
	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/realtime"
	"github.com/saymain/echokit-server/internal/registry"
	"github.com/saymain/echokit-server/internal/transcript"
)

const (
	wsReadLimit    = 2 << 20
	wsReadTimeout  = 120 * time.Second
	readyzTimeout  = 2 * time.Second
	wsReadBufSize  = 4096
	wsWriteBufSize = 4096
)

type Server struct {
	cfg         *config.Config
	gateway     *realtime.Gateway
	sessions    *registry.Registry
	transcripts transcript.Store
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg *config.Config, gateway *realtime.Gateway, sessions *registry.Registry, transcripts transcript.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		gateway:     gateway,
		sessions:    sessions,
		transcripts: transcripts,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufSize,
			WriteBufferSize: wsWriteBufSize,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may open a realtime session.
				// Non-browser clients omit Origin and are allowed.
				if cfg.Server.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/realtime", s.handleRealtimeWS)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleSessionInfo)
	r.Get("/v1/sessions/{id}/transcript", s.handleSessionTranscript)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

// handleRealtimeWS owns one connection end to end: upgrade, greet, then a
// read loop that dispatches every text frame inline. The emitter is the
// only other goroutine touching the socket; it is closed and drained before
// the connection is released.
func (s *Server) handleRealtimeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	handler, emitter := s.gateway.Attach(conn)
	sessionID := handler.SessionID()

	s.sessions.Register(sessionID, conn.RemoteAddr().String())
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("connected").Inc()
	log.Printf("[ws] session %s: connected from %s", sessionID, conn.RemoteAddr())

	defer func() {
		emitter.Close()
		<-emitter.Done()
		s.sessions.Unregister(sessionID)
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("disconnected").Inc()
		log.Printf("[ws] session %s: disconnected", sessionID)
	}()

	handler.Announce()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Any frame proves liveness, not just pongs.
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		s.sessions.MarkEvent(sessionID)
		if err := handler.HandleRaw(ctx, data); err != nil {
			log.Printf("[ws] session %s: %v", sessionID, err)
		}
	}
}

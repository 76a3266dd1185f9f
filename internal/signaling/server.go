package signaling

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	TokenParam = "token"
	namespace  = "/"
)

var relayedEvents = []string{models.EventOffer, models.EventAnswer, models.EventICECandidate}

// Authorized reports whether the presented token matches. An empty expected
// token leaves the relay open.
func Authorized(expected, presented string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

type emitter interface {
	Emit(event string, args ...interface{})
}

type member struct {
	peer  emitter
	label string
}

// hub tracks authorized sockets and fans messages out to everyone but the sender.
type hub struct {
	lock    sync.RWMutex
	members map[string]member
}

func newHub() *hub {
	return &hub{members: make(map[string]member)}
}

func (h *hub) add(id string, peer emitter) string {
	label := uuid.NewString()
	h.lock.Lock()
	defer h.lock.Unlock()
	h.members[id] = member{peer: peer, label: label}
	return label
}

func (h *hub) remove(id string) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	_, ok := h.members[id]
	delete(h.members, id)
	return ok
}

func (h *hub) has(id string) bool {
	h.lock.RLock()
	defer h.lock.RUnlock()
	_, ok := h.members[id]
	return ok
}

func (h *hub) size() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.members)
}

// relay returns how many peers received the message. Unknown senders are dropped.
func (h *hub) relay(from, event, payload string) int {
	h.lock.RLock()
	sender, ok := h.members[from]
	targets := make([]emitter, 0, len(h.members))
	if ok {
		for id, m := range h.members {
			if id != from {
				targets = append(targets, m.peer)
			}
		}
	}
	h.lock.RUnlock()

	if !ok {
		log.Warn().Str("socket", from).Str("event", event).Msg("relay from unauthorized socket dropped")
		return 0
	}
	for _, target := range targets {
		target.Emit(event, payload)
	}
	log.Debug().Str("from", sender.label).Str("event", event).Int("targets", len(targets)).Msg("relayed")
	return len(targets)
}

// Server is the rendezvous relay. It never inspects the sdp or candidates it
// forwards.
type Server struct {
	cfg config.SignalServerConfig
	io  *socketio.Server
	hub *hub
}

func NewServer(cfg config.SignalServerConfig) *Server {
	s := &Server{
		cfg: cfg,
		io:  socketio.NewServer(nil),
		hub: newHub(),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.io.OnConnect(namespace, func(conn socketio.Conn) error {
		u := conn.URL()
		if !Authorized(s.cfg.Token, u.Query().Get(TokenParam)) {
			log.Warn().Str("socket", conn.ID()).Str("remote", conn.RemoteAddr().String()).Msg("rejecting socket with bad token")
			go conn.Close()
			return fmt.Errorf("unauthorized")
		}
		label := s.hub.add(conn.ID(), conn)
		log.Info().Str("socket", conn.ID()).Str("peer", label).Int("peers", s.hub.size()).Msg("peer joined")
		return nil
	})

	for _, event := range relayedEvents {
		event := event
		s.io.OnEvent(namespace, event, func(conn socketio.Conn, payload string) {
			s.hub.relay(conn.ID(), event, payload)
		})
	}

	s.io.OnError(namespace, func(conn socketio.Conn, err error) {
		if conn == nil {
			log.Warn().Err(err).Msg("socket error")
			return
		}
		log.Warn().Err(err).Str("socket", conn.ID()).Msg("socket error")
	})

	s.io.OnDisconnect(namespace, func(conn socketio.Conn, reason string) {
		if s.hub.remove(conn.ID()) {
			log.Info().Str("socket", conn.ID()).Str("reason", reason).Int("peers", s.hub.size()).Msg("peer left")
		}
	})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.io)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "gorrc signal relay running")
	})
	return mux
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.io.Serve()
		if err != nil {
			return fmt.Errorf("socketio listen error - %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info().Str("listen", s.cfg.Listen).Msg("signal relay listening")
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen error - %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("stopping signal relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		return s.io.Close()
	})

	err := group.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

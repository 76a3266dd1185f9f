package signaling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"
)

type Handler func(models.SignalingMessage)

type StatusReporter interface {
	SignalingStatusChanged(models.SignalingStatus)
}

// link is one live connection to the relay.
type link interface {
	Emit(event string, payload string)
	Close() error
}

// dialFunc connects and routes inbound payloads by event name. lost is called
// at most once per link when the connection drops.
type dialFunc func(uri string, events map[string]func(string), lost func(reason string)) (link, error)

// Client keeps a socket.io link to the relay, reconnecting with backoff. Its
// liveness is reported separately from any peer connection riding on it.
type Client struct {
	cfg      config.SignalClientConfig
	handler  Handler
	reporter StatusReporter
	dial     dialFunc
	wait     func(context.Context, time.Duration) error

	lock         sync.Mutex
	current      link
	onConnect    func()
	onDisconnect func()
}

func NewClient(cfg config.SignalClientConfig, handler Handler, reporter StatusReporter) *Client {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = config.DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	return &Client{
		cfg:      cfg,
		handler:  handler,
		reporter: reporter,
		dial:     dialSocketIO,
		wait:     sleepContext,
	}
}

// OnConnect runs after every successful (re)connect.
func (c *Client) OnConnect(f func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onConnect = f
}

// OnDisconnect runs whenever an established link drops.
func (c *Client) OnDisconnect(f func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onDisconnect = f
}

func (c *Client) Connected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current != nil
}

// Emit sends msg on the current link. It fails with ErrSignalingTransportDown
// while disconnected; nothing is buffered.
func (c *Client) Emit(msg models.SignalingMessage) error {
	payload, err := models.EncodeSignal(msg)
	if err != nil {
		return err
	}

	c.lock.Lock()
	current := c.current
	c.lock.Unlock()
	if current == nil {
		return fmt.Errorf("%w: dropping %s", models.ErrSignalingTransportDown, msg.Event())
	}
	current.Emit(msg.Event(), payload)
	return nil
}

// Run connects and keeps reconnecting until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	uri, err := SocketURI(c.cfg.Server, c.cfg.Token)
	if err != nil {
		return err
	}

	events := map[string]func(string){
		models.EventOffer:        func(p string) { c.receive(models.EventOffer, p) },
		models.EventAnswer:       func(p string) { c.receive(models.EventAnswer, p) },
		models.EventICECandidate: func(p string) { c.receive(models.EventICECandidate, p) },
	}

	delay := c.cfg.ReconnectMin
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			c.report(models.SignalingReconnecting)
		}
		attempt++

		lost := make(chan string, 1)
		current, err := c.dial(uri, events, func(reason string) {
			select {
			case lost <- reason:
			default:
			}
		})
		if err != nil {
			log.Warn().Err(err).Str("server", c.cfg.Server).Dur("retry_in", delay).Msg("signaling connect failed")
			err = c.wait(ctx, delay)
			if err != nil {
				return err
			}
			delay = NextBackoff(delay, c.cfg.ReconnectMax)
			continue
		}

		log.Info().Str("server", c.cfg.Server).Msg("connected to signaling server")
		delay = c.cfg.ReconnectMin
		c.setLink(current)
		c.report(models.SignalingConnected)
		c.notify(true)

		select {
		case <-ctx.Done():
			c.setLink(nil)
			current.Close()
			c.report(models.SignalingDisconnected)
			return ctx.Err()
		case reason := <-lost:
			log.Warn().Str("reason", reason).Msg("signaling link lost")
			c.setLink(nil)
			current.Close()
			c.report(models.SignalingDisconnected)
			c.notify(false)
		}

		err = c.wait(ctx, delay)
		if err != nil {
			return err
		}
		delay = NextBackoff(delay, c.cfg.ReconnectMax)
	}
}

func (c *Client) receive(event, payload string) {
	msg, err := models.DecodeSignal(event, payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("dropping signaling message")
		return
	}
	if c.handler != nil {
		c.handler(msg)
	}
}

func (c *Client) setLink(l link) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.current = l
}

func (c *Client) notify(connected bool) {
	c.lock.Lock()
	f := c.onDisconnect
	if connected {
		f = c.onConnect
	}
	c.lock.Unlock()
	if f != nil {
		f()
	}
}

func (c *Client) report(status models.SignalingStatus) {
	if c.reporter != nil {
		c.reporter.SignalingStatusChanged(status)
	}
}

// NextBackoff doubles the delay up to max.
func NextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

// SocketURI builds the relay url carrying the auth token as a query parameter.
// A bare host:port is treated as http.
func SocketURI(server, token string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid signaling server %q - %w", server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid signaling server %q - missing host", server)
	}
	if token != "" {
		q := u.Query()
		q.Set(TokenParam, token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type socketLink struct {
	client *socketio.Client
}

func (s socketLink) Emit(event, payload string) {
	s.client.Emit(event, payload)
}

func (s socketLink) Close() error {
	return s.client.Close()
}

func dialSocketIO(uri string, events map[string]func(string), lost func(string)) (link, error) {
	client, err := socketio.NewClient(uri, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating client - %w", err)
	}

	for event, handler := range events {
		handler := handler
		client.OnEvent(event, func(s socketio.Conn, msg string) {
			handler(msg)
		})
	}
	client.OnDisconnect(func(s socketio.Conn, reason string) {
		lost(reason)
	})
	client.OnError(func(s socketio.Conn, err error) {
		log.Debug().Err(err).Msg("signaling socket error")
		lost(err.Error())
	})

	err = client.Connect() //Client must have atleast 1 event handler to work
	if err != nil {
		return nil, fmt.Errorf("%w: error connecting to server - %s", models.ErrSignalingTransportDown, err)
	}
	return socketLink{client: client}, nil
}

package cartsync

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultSendQueue      = 64
	defaultPongWait       = 60 * time.Second
	writeWait             = 10 * time.Second
	maxMessageSize        = 1 << 20
)

// Options configure a connection to the cart server.
type Options struct {
	// Token is sent as a bearer credential on every (re)connect.
	Token          string
	Header         http.Header
	ReconnectDelay time.Duration
	SendQueue      int
	HandshakeWait  time.Duration
	// PongWait is how long the connection may stay silent before it is
	// treated as dead and redialed. Server pings reset it, so it has to
	// exceed the server's ping interval.
	PongWait       time.Duration
	Logger         logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.SendQueue <= 0 {
		o.SendQueue = defaultSendQueue
	}
	if o.HandshakeWait <= 0 {
		o.HandshakeWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// WSTransport is a websocket Transport that redials silently after the
// connection drops. Frames queued while disconnected are written once a
// connection is back.
type WSTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	opts   Options
	log    logrus.FieldLogger

	*listeners

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// DialWebSocket starts a WSTransport. It returns immediately; the first
// connection attempt happens in the background.
func DialWebSocket(serverURL string, opts Options) (Transport, error) {
	opts = opts.withDefaults()

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	t := &WSTransport{
		url:       serverURL,
		header:    header,
		dialer:    &websocket.Dialer{HandshakeTimeout: opts.HandshakeWait, Proxy: http.ProxyFromEnvironment},
		opts:      opts,
		log:       opts.Logger.WithField("component", "cartsync.transport"),
		listeners: newListeners(),
		send:      make(chan []byte, opts.SendQueue),
		done:      make(chan struct{}),
	}

	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Emit queues an event frame for the writer.
func (t *WSTransport) Emit(event string, payload interface{}) error {
	frame, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (t *WSTransport) On(event string, h Handler) func() {
	return t.listeners.on(event, h)
}

func (t *WSTransport) OnReconnect(fn func()) func() {
	return t.listeners.onReconnect(fn)
}

// Close stops the transport and waits for its goroutines. It is safe to
// call more than once.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
	return nil
}

func (t *WSTransport) run() {
	defer t.wg.Done()

	connected := false
	for {
		conn, _, err := t.dialer.Dial(t.url, t.header)
		if err != nil {
			t.log.WithError(err).Debug("dial failed")
			if !t.wait() {
				return
			}
			continue
		}

		if connected {
			t.log.Info("reconnected")
			t.listeners.reconnected()
		}
		connected = true

		t.serve(conn)

		select {
		case <-t.done:
			return
		default:
		}
		if !t.wait() {
			return
		}
	}
}

// wait sleeps for the reconnect delay; false means the transport closed.
func (t *WSTransport) wait() bool {
	timer := time.NewTimer(t.opts.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-t.done:
		return false
	case <-timer.C:
		return true
	}
}

// serve pumps one connection until it breaks or the transport closes.
func (t *WSTransport) serve(conn *websocket.Conn) {
	readErr := make(chan error, 1)
	go func() {
		readErr <- t.readPump(conn)
	}()

	readDone := false
	defer func() {
		conn.Close()
		if !readDone {
			<-readErr
		}
	}()

	for {
		select {
		case <-t.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case err := <-readErr:
			readDone = true
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.WithError(err).Warn("connection lost")
			}
			return
		case frame := <-t.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.log.WithError(err).Warn("write failed, frame dropped")
				return
			}
		}
	}
}

func (t *WSTransport) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.log.WithError(err).Warn("malformed frame")
			continue
		}
		t.listeners.dispatch(env.Event, env.Data)
	}
}

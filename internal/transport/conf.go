package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gologme/log"
)

const (
	DEFAULT_TCP_ADDR = ":2048"
	DEFAULT_UDP_ADDR = ":1111"

	DEFAULT_MCAST_GROUP = "224.0.0.99"
	DEFAULT_MCAST_PORT  = 2221
	DEFAULT_MCAST_TTL   = 15

	DEFAULT_READ_TIMEOUT    = 10 * time.Second
	DEFAULT_REQUEST_TIMEOUT = 30 * time.Second
	DEFAULT_REAP_INTERVAL   = time.Second
	DEFAULT_DIAL_TIMEOUT    = 10 * time.Second
)

// This struct represents the state of the config at a given time. It should
// be treated as immutable.
type configSnapshot struct {
	// Where transport events are logged.
	logger *log.Logger

	// The address to bind to. Ignored by outbound-only transports.
	listenAddr string

	// Whether to retry on an ephemeral port if listenAddr cannot be bound.
	fallbackToEphemeral bool

	// How long a connection may take to deliver its request.
	readTimeout time.Duration

	// How long an asynchronous request may wait for its response before the
	// server answers 504 on its behalf. Zero disables the deadline.
	requestTimeout time.Duration

	// How often expired asynchronous requests are looked for.
	reapInterval time.Duration

	// Limit on establishing outbound connections.
	dialTimeout time.Duration

	// Time-to-live of outgoing multicast datagrams.
	multicastTTL int

	// Interface to join multicast groups on. Nil lets the system decide.
	multicastInterface *net.Interface

	// Notified about the lifecycle of asynchronous exchanges. May be nil.
	recorder Recorder
}

// This struct represents the configuration for a transport. Values can be
// accessed and edited via their respective getter and setter methods. Changes
// take effect on the next Start.
type config struct {
	lock sync.RWMutex

	configSnapshot
}

func newConfig(listenAddr string) config {
	return config{configSnapshot: configSnapshot{
		logger:              log.New(io.Discard, "", 0),
		listenAddr:          listenAddr,
		fallbackToEphemeral: true,
		readTimeout:         DEFAULT_READ_TIMEOUT,
		requestTimeout:      DEFAULT_REQUEST_TIMEOUT,
		reapInterval:        DEFAULT_REAP_INTERVAL,
		dialTimeout:         DEFAULT_DIAL_TIMEOUT,
		multicastTTL:        DEFAULT_MCAST_TTL,
	}}
}

//
// Internal
//

// Lock the config for writing and return a function to unlock it.
func (c *config) autolock() func() {
	c.lock.Lock()
	return func() {
		c.lock.Unlock()
	}
}

// Lock the config for reading and return a function to unlock it.
func (c *config) autorlock() func() {
	c.lock.RLock()
	return func() {
		c.lock.RUnlock()
	}
}

// This method returns a struct representing the current state of the config.
func (c *config) snapshot() configSnapshot {
	defer c.autorlock()()

	return c.configSnapshot
}

//
// Setters
//

func (b *base) SetLogger(u *log.Logger) {
	defer b.conf.autolock()()

	if u == nil {
		u = log.New(io.Discard, "", 0)
	}
	b.conf.logger = u
}

func (b *base) SetListenAddr(u string) {
	defer b.conf.autolock()()

	b.conf.listenAddr = u
}

func (b *base) SetFallbackToEphemeral(u bool) {
	defer b.conf.autolock()()

	b.conf.fallbackToEphemeral = u
}

func (b *base) SetReadTimeout(u time.Duration) {
	defer b.conf.autolock()()

	b.conf.readTimeout = u
}

func (b *base) SetRequestTimeout(u time.Duration) {
	defer b.conf.autolock()()

	b.conf.requestTimeout = u
}

func (b *base) SetReapInterval(u time.Duration) {
	defer b.conf.autolock()()

	b.conf.reapInterval = u
}

func (b *base) SetDialTimeout(u time.Duration) {
	defer b.conf.autolock()()

	b.conf.dialTimeout = u
}

func (b *base) SetMulticastTTL(u int) {
	defer b.conf.autolock()()

	b.conf.multicastTTL = u
}

func (b *base) SetMulticastInterface(u *net.Interface) {
	defer b.conf.autolock()()

	b.conf.multicastInterface = u
}

func (b *base) SetRecorder(u Recorder) {
	defer b.conf.autolock()()

	b.conf.recorder = u
}

//
// Getters
//

func (b *base) GetLogger() *log.Logger {
	defer b.conf.autorlock()()

	return b.conf.logger
}

func (b *base) GetListenAddr() string {
	defer b.conf.autorlock()()

	return b.conf.listenAddr
}

func (b *base) GetRequestTimeout() time.Duration {
	defer b.conf.autorlock()()

	return b.conf.requestTimeout
}

func (b *base) GetMulticastTTL() int {
	defer b.conf.autorlock()()

	return b.conf.multicastTTL
}

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/journal"
	"dev.l1qu1d.net/wraith-labs/restac/internal/transport"
)

const (
	ENVIRONMENT_PREFIX = "RESTAC_"

	ENV_DEBUG = ENVIRONMENT_PREFIX + "DEBUG"

	ENV_TCP_LISTENER = ENVIRONMENT_PREFIX + "TCP_LISTENER"
	ENV_TCP_CLIENT   = ENVIRONMENT_PREFIX + "TCP_CLIENT"
	ENV_UDP_LISTENER = ENVIRONMENT_PREFIX + "UDP_LISTENER"
	ENV_MCAST        = ENVIRONMENT_PREFIX + "MCAST"
	ENV_MCAST_GROUP  = ENVIRONMENT_PREFIX + "MCAST_GROUP"
	ENV_MCAST_PORT   = ENVIRONMENT_PREFIX + "MCAST_PORT"
	ENV_FALLBACK     = ENVIRONMENT_PREFIX + "FALLBACK_TO_EPHEMERAL"

	ENV_REQUEST_TIMEOUT = ENVIRONMENT_PREFIX + "REQUEST_TIMEOUT"

	ENV_JOURNAL           = ENVIRONMENT_PREFIX + "JOURNAL"
	ENV_JOURNAL_RETENTION = ENVIRONMENT_PREFIX + "JOURNAL_RETENTION"

	ENV_ADMIN_LISTENER = ENVIRONMENT_PREFIX + "ADMIN_LISTENER"

	ENV_DEMO = ENVIRONMENT_PREFIX + "DEMO"
)

// The value which switches off an optional listener.
const DISABLED = "off"

type conf struct {
	Debug bool

	TcpListener string
	TcpClient   bool
	UdpListener string

	Multicast      bool
	MulticastGroup string
	MulticastPort  int

	FallbackToEphemeral bool
	RequestTimeout      time.Duration

	Journal          string
	JournalRetention time.Duration

	AdminListener string

	Demo bool
}

func MakeConf() conf {
	parsedDebug := envBool(ENV_DEBUG, false)

	envTcpListener := os.Getenv(ENV_TCP_LISTENER)
	if envTcpListener == "" {
		envTcpListener = transport.DEFAULT_TCP_ADDR
	}
	if envTcpListener == DISABLED {
		envTcpListener = ""
	} else {
		checkListener(ENV_TCP_LISTENER, envTcpListener)
	}

	envUdpListener := os.Getenv(ENV_UDP_LISTENER)
	if envUdpListener == "" || envUdpListener == DISABLED {
		envUdpListener = ""
	} else {
		checkListener(ENV_UDP_LISTENER, envUdpListener)
	}

	envMulticastGroup := os.Getenv(ENV_MCAST_GROUP)
	if envMulticastGroup == "" {
		envMulticastGroup = transport.DEFAULT_MCAST_GROUP
	}
	if ip := net.ParseIP(envMulticastGroup); ip == nil || !ip.IsMulticast() {
		panic(fmt.Errorf("could not parse value of env var %s, %s is not a multicast address", ENV_MCAST_GROUP, envMulticastGroup))
	}

	parsedMulticastPort := envInt(ENV_MCAST_PORT, transport.DEFAULT_MCAST_PORT)
	if parsedMulticastPort <= 0 || parsedMulticastPort > 65535 {
		panic(fmt.Errorf("value of env var %s is out of range", ENV_MCAST_PORT))
	}

	envAdminListener := os.Getenv(ENV_ADMIN_LISTENER)
	if envAdminListener == DISABLED {
		envAdminListener = ""
	}
	if envAdminListener != "" {
		checkListener(ENV_ADMIN_LISTENER, envAdminListener)
	}

	return conf{
		Debug:               parsedDebug,
		TcpListener:         envTcpListener,
		TcpClient:           envBool(ENV_TCP_CLIENT, true),
		UdpListener:         envUdpListener,
		Multicast:           envBool(ENV_MCAST, false),
		MulticastGroup:      envMulticastGroup,
		MulticastPort:       parsedMulticastPort,
		FallbackToEphemeral: envBool(ENV_FALLBACK, false),
		RequestTimeout:      envDuration(ENV_REQUEST_TIMEOUT, transport.DEFAULT_REQUEST_TIMEOUT),
		Journal:             os.Getenv(ENV_JOURNAL),
		JournalRetention:    envDuration(ENV_JOURNAL_RETENTION, journal.DEFAULT_RETENTION),
		AdminListener:       envAdminListener,
		Demo:                envBool(ENV_DEMO, true),
	}
}

func envBool(name string, fallback bool) bool {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		panic(errors.Join(fmt.Errorf("could not parse value of env var %s", name), err))
	}
	return parsed
}

func envInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		panic(errors.Join(fmt.Errorf("could not parse value of env var %s", name), err))
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		panic(errors.Join(fmt.Errorf("could not parse value of env var %s", name), err))
	}
	if parsed <= 0 {
		panic(fmt.Errorf("value of env var %s must be positive", name))
	}
	return parsed
}

func checkListener(name, value string) {
	if _, _, err := net.SplitHostPort(value); err != nil {
		panic(errors.Join(fmt.Errorf("could not parse value of env var %s, %s is not a valid listen address", name, value), err))
	}
}

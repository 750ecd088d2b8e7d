package main

import (
	"testing"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/journal"
	"dev.l1qu1d.net/wraith-labs/restac/internal/transport"
)

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()

	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected a panic", name)
		}
	}()
	f()
}

func TestMakeConfDefaults(t *testing.T) {
	c := MakeConf()

	if c.Debug || !c.TcpClient || !c.Demo || c.Multicast {
		t.Fatalf("unexpected default switches %+v", c)
	}
	if c.TcpListener != transport.DEFAULT_TCP_ADDR || c.UdpListener != "" || c.AdminListener != "" {
		t.Fatalf("unexpected default listeners %+v", c)
	}
	if c.MulticastGroup != transport.DEFAULT_MCAST_GROUP || c.MulticastPort != transport.DEFAULT_MCAST_PORT {
		t.Fatalf("unexpected default multicast settings %+v", c)
	}
	if c.RequestTimeout != transport.DEFAULT_REQUEST_TIMEOUT || c.JournalRetention != journal.DEFAULT_RETENTION {
		t.Fatalf("unexpected default durations %+v", c)
	}
}

func TestMakeConfOverrides(t *testing.T) {
	t.Setenv(ENV_DEBUG, "true")
	t.Setenv(ENV_TCP_LISTENER, DISABLED)
	t.Setenv(ENV_UDP_LISTENER, "127.0.0.1:1111")
	t.Setenv(ENV_MCAST, "1")
	t.Setenv(ENV_MCAST_GROUP, "239.1.2.3")
	t.Setenv(ENV_MCAST_PORT, "5000")
	t.Setenv(ENV_REQUEST_TIMEOUT, "5s")
	t.Setenv(ENV_JOURNAL, "/tmp/journal.db")
	t.Setenv(ENV_ADMIN_LISTENER, "127.0.0.1:8080")
	t.Setenv(ENV_DEMO, "false")

	c := MakeConf()

	if !c.Debug || c.Demo || !c.Multicast {
		t.Fatalf("switches not applied %+v", c)
	}
	if c.TcpListener != "" || c.UdpListener != "127.0.0.1:1111" || c.AdminListener != "127.0.0.1:8080" {
		t.Fatalf("listeners not applied %+v", c)
	}
	if c.MulticastGroup != "239.1.2.3" || c.MulticastPort != 5000 {
		t.Fatalf("multicast settings not applied %+v", c)
	}
	if c.RequestTimeout != 5*time.Second || c.Journal != "/tmp/journal.db" {
		t.Fatalf("journal settings not applied %+v", c)
	}
}

func TestMakeConfRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		env   string
		value string
	}{
		{ENV_DEBUG, "perhaps"},
		{ENV_TCP_LISTENER, "nocolon"},
		{ENV_MCAST_GROUP, "10.0.0.1"},
		{ENV_MCAST_PORT, "70000"},
		{ENV_REQUEST_TIMEOUT, "-1s"},
		{ENV_JOURNAL_RETENTION, "soon"},
	}

	for _, c := range cases {
		t.Run(c.env, func(t *testing.T) {
			t.Setenv(c.env, c.value)
			mustPanic(t, c.env, func() { MakeConf() })
		})
	}
}

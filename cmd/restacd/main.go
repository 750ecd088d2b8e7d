package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac"
	"dev.l1qu1d.net/wraith-labs/restac/internal/admin"
	"github.com/gologme/log"
)

const PRODUCT_NAME = "restacd"

func main() {
	// Set up logging.
	logger := log.New(os.Stdout, fmt.Sprintf("%s ", PRODUCT_NAME), log.Flags())
	logger.EnableLevelsByNumber(5)

	logger.Infof("starting %s", PRODUCT_NAME)

	// Parse configuration.
	c := MakeConf()

	if c.Debug {
		logger.EnableLevelsByNumber(10)
	}

	// Set up clean exit handler.
	sigchan := make(chan os.Signal, 2)
	signal.Notify(sigchan, syscall.SIGTERM, syscall.SIGINT)

	//
	// Configure the transceiver.
	//

	t, err := restac.New(restac.Options{
		Logger:              logger,
		EnableTCPServer:     c.TcpListener != "",
		TCPAddr:             c.TcpListener,
		EnableTCPClient:     c.TcpClient,
		EnableUDP:           c.UdpListener != "",
		UDPAddr:             c.UdpListener,
		EnableMulticast:     c.Multicast,
		MulticastGroup:      c.MulticastGroup,
		MulticastPort:       c.MulticastPort,
		FallbackToEphemeral: c.FallbackToEphemeral,
		RequestTimeout:      c.RequestTimeout,
		JournalPath:         c.Journal,
		JournalRetention:    c.JournalRetention,
	})
	if err != nil {
		panic(errors.Join(errors.New("failed to configure transceiver"), err))
	}

	if c.Demo {
		t.Mount(mathResource(logger))
		t.Mount(echoResource(logger))
	}

	// Create a context to cancel ongoing operations when needed.
	ctx, ctxcancel := context.WithCancel(context.Background())

	logger.Info("starting transceiver")
	if err := t.Start(ctx); err != nil {
		panic(errors.Join(errors.New("failed to start transceiver"), err))
	}

	//
	// Set up the admin HTTP server.
	//

	wg := sync.WaitGroup{}

	var adminServer *http.Server
	if c.AdminListener != "" {
		adminServer = &http.Server{
			Addr:         c.AdminListener,
			TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
			Handler: admin.NewRouter(t),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			logger.Infof("admin api listening on %s", c.AdminListener)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("admin api failed: %v", err)
			}
		}()
	}

	// Wait until exit is requested.
	<-sigchan

	//
	// On exit.
	//

	logger.Info("exit requested; exiting gracefully")

	go func() {
		<-sigchan
		logger.Warn("exit re-requested; forcing")
		os.Exit(1)
	}()

	// Stop any ongoing operations using this context.
	ctxcancel()

	// Tear down the admin HTTP server.
	if adminServer != nil {
		shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), time.Second*2)
		adminServer.Shutdown(shutdownCtx)
		shutdownCtxCancel()
	}

	// Stop the transceiver.
	t.Stop()

	// Wait for goroutines to quit.
	wg.Wait()

	os.Exit(0)
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/logger"
)

// serialOpener opens --port devices. Tests replace it with a simulator.
var serialOpener amf.PortOpener = amf.OpenSerialPort

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketPort carries the serial byte stream over a WebSocket bridge. Each
// binary message holds a chunk of bytes in one direction.
type WebSocketPort struct {
	conn *websocket.Conn

	messages chan []byte
	done     chan struct{}

	mu          sync.Mutex
	buf         []byte
	readTimeout time.Duration
	readErr     error
	closeOnce   sync.Once
}

var _ amf.Port = (*WebSocketPort)(nil)

func newWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	w := &WebSocketPort{
		conn:        conn,
		messages:    make(chan []byte, 64),
		done:        make(chan struct{}),
		readTimeout: amf.DefaultReadTimeout,
	}
	go w.readLoop()
	return w
}

// readLoop queues incoming binary messages until the connection fails.
func (w *WebSocketPort) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}

		// Only binary messages carry link bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

// Read returns buffered bytes, or waits up to the read timeout for the next
// message. A timeout returns 0, nil like a serial port.
func (w *WebSocketPort) Read(p []byte) (int, error) {
	w.mu.Lock()
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		w.mu.Unlock()
		return n, nil
	}
	timeout := w.readTimeout
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, w.closedErr()
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		n := copy(p, data)
		w.buf = append(w.buf, data[n:]...)
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-w.done:
		return 0, ErrConnectionClosed
	}
}

func (w *WebSocketPort) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, w.readErr)
	}
	return ErrConnectionClosed
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ResetInputBuffer drops buffered bytes and every message already queued.
func (w *WebSocketPort) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()

	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (w *WebSocketPort) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readTimeout = t
	return nil
}

func (w *WebSocketPort) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// OpenWebSocketPort opens a WebSocket bridge with HTTP Basic auth
func OpenWebSocketPort(wsURL, username, password string, skipSSLVerify bool) (*WebSocketPort, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketPort(conn), nil
}

// webSocketOpener adapts OpenWebSocketPort to amf.PortOpener; the port name
// is the URL and the baud rate is set on the far side of the bridge.
func webSocketOpener(username, password string, skipSSLVerify bool) amf.PortOpener {
	return func(name string, _ int) (amf.Port, error) {
		return OpenWebSocketPort(name, username, password, skipSSLVerify)
	}
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("VALVESTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connectionTarget returns the port name and opener selected by the flags
func connectionTarget() (string, amf.PortOpener, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return "", nil, "", err
			}
		}
		return wsURL, webSocketOpener(wsUsername, password, wsNoSSLVerify), fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		return portName, serialOpener, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return "", nil, "", errors.New("either --port or --url must be specified")
}

// deviceOptions builds the session options shared by every command
func deviceOptions(opener amf.PortOpener) ([]amf.Option, error) {
	addr, err := amf.ParseAddress(addressFlag)
	if err != nil {
		return nil, err
	}

	opts := []amf.Option{
		amf.WithOpener(opener),
		amf.WithBaudRate(baudRate),
		amf.WithReadTimeout(readTimeout),
		amf.WithAddress(addr),
		amf.WithAnswerMode(amf.AnswerMode(answerMode)),
		amf.WithPortCount(portCount),
		amf.WithPump(hasPump),
		amf.WithLogger(logger.GetLogger()),
		amf.WithMetrics(sessionMetrics),
	}
	if recorder != nil {
		opts = append(opts, amf.WithTracer(recorder))
	}
	return opts, nil
}

// OpenDevice connects to the device selected by the flags
func OpenDevice() (*amf.Device, string, error) {
	name, opener, connInfo, err := connectionTarget()
	if err != nil {
		return nil, "", err
	}

	opts, err := deviceOptions(opener)
	if err != nil {
		return nil, "", err
	}

	dev, err := amf.NewDevice(name, opts...)
	if err != nil {
		return nil, "", err
	}
	if err := dev.Connect(); err != nil {
		return nil, "", err
	}

	return dev, connInfo, nil
}

// withDevice runs fn against a connected device and always disconnects.
// Ctrl+C cancels the context; a running poll stops before its next query.
func withDevice(fn func(ctx context.Context, dev *amf.Device) error) error {
	dev, _, err := OpenDevice()
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, dev)
}

// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dtn7/fixd/pkg/fixmsg"
)

// soh is the FIX field separator (0x01).
const soh = "\x01"

// TCPClient is a minimal Connector and message writer/reader over a plain
// TCP socket, standing in for the full byte-level FIX codec spec.md §1
// places out of scope. It round-trips a Message's ordered tag=value pairs
// verbatim; it does not compute BodyLength or CheckSum, so it is only
// suitable against a counterparty that tolerates the same simplification
// (e.g. another fixd instance, or this engine's own test harness).
type TCPClient struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// NewTCPClient creates a TCPClient that will dial addr on Connect.
func NewTCPClient(addr string) *TCPClient {
	return &TCPClient{addr: addr, closed: true}
}

// Connect implements Connector.
func (c *TCPClient) Connect() error {
	conn, err := net.DialTimeout("tcp", c.addr, 10*time.Second)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.closed = false
	c.mu.Unlock()

	return nil
}

// Closed implements Connector.
func (c *TCPClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close implements Connector.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// WriteMessage implements stages.MessageWriter, encoding msg's fields as
// SOH-joined tag=value pairs terminated by a newline.
func (c *TCPClient) WriteMessage(msg *fixmsg.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.markClosed()
		return net.ErrClosed
	}

	var b strings.Builder
	for _, tag := range msg.Fields() {
		v, _ := msg.Get(tag)
		b.WriteString(strconv.Itoa(int(tag)))
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteString(soh)
	}
	b.WriteByte('\n')

	if _, err := conn.Write([]byte(b.String())); err != nil {
		c.markClosed()
		return err
	}
	return nil
}

// ReadMessage blocks for the next newline-delimited message and decodes it
// back into a Message. Callers loop on this to feed Pipeline.Receive.
func (c *TCPClient) ReadMessage() (*fixmsg.Message, error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	if reader == nil {
		c.markClosed()
		return nil, net.ErrClosed
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		c.markClosed()
		return nil, err
	}

	msg := fixmsg.New()
	for _, pair := range strings.Split(strings.TrimRight(line, "\n"), soh) {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		tagNum, convErr := strconv.Atoi(kv[0])
		if convErr != nil {
			continue
		}
		msg.Set(fixmsg.Tag(tagNum), kv[1])
	}
	return msg, nil
}

func (c *TCPClient) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Package netio is the client I/O fabric: a raw TCP listener speaking the
// line protocol spec.md §5 describes (CRLF-terminated input, backspace
// editing, dropped control bytes, "> " prompt framing, telnet ECHO
// suppression for sensitive prompts). Each accepted connection is handed
// to the engine as an engine.Sink and fed lines through Submit, grounded
// on the teacher's realtime.Session read/write pump pair
// (internal/realtime/ws.go) generalized from a JSON websocket frame to a
// raw byte stream.
package netio

import (
	"bufio"
	"net"
	"time"

	"go.uber.org/zap"

	"example.com/remud/internal/engine"
	"example.com/remud/internal/observability"
	"example.com/remud/internal/session"
)

const (
	writeQueueSize = 64
	idleTimeout    = 30 * time.Minute

	// Telnet IAC negotiation bytes, used only to suppress local echo
	// while a sensitive prompt is active.
	iac  byte = 255
	will byte = 251
	wont byte = 252
	echo byte = 1

	backspace  byte = 0x08
	delete7bit byte = 0x7f
	cr         byte = '\r'
	lf         byte = '\n'
)

// Listener accepts line-protocol connections and feeds each one into an
// engine.Engine.
type Listener struct {
	ln      net.Listener
	engine  *engine.Engine
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Listen opens a TCP listener on addr ("host:port" or ":port").
func Listen(addr string, eng *engine.Engine, logger *zap.Logger, metrics *observability.Metrics) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, engine: eng, logger: logger, metrics: metrics}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until the listener is closed, spawning one
// goroutine pair per connection. It returns the Accept error once the
// listener is closed (net.ErrClosed on a clean shutdown).
func (l *Listener) Serve() error {
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go l.handle(raw)
	}
}

func (l *Listener) handle(raw net.Conn) {
	c := &conn{
		raw:  raw,
		send: make(chan frame, writeQueueSize),
	}
	c.id = l.engine.Connect(c)
	if l.logger != nil {
		l.logger.Info("client connected", zap.String("remote", raw.RemoteAddr().String()))
	}

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.readPump(l.engine)

	close(c.send)
	<-done
	l.engine.Disconnect(c.id)
	raw.Close()
}

// frame is one queued outbound unit: either a plain line or a prompt.
type frame struct {
	line      string
	isPrompt  bool
	sensitive bool
}

// conn is one live connection. It implements engine.Sink; Submit calls
// happen from readPump's goroutine, writes happen from writePump's.
type conn struct {
	id   session.ClientId
	raw  net.Conn
	send chan frame

	echoSuppressed bool
}

func (c *conn) Send(line string) {
	select {
	case c.send <- frame{line: line}:
	default:
	}
}

func (c *conn) Prompt(line string, sensitive bool) {
	select {
	case c.send <- frame{line: line, isPrompt: true, sensitive: sensitive}:
	default:
	}
}

func (c *conn) Close() {
	c.raw.Close()
}

func (c *conn) writePump() {
	w := bufio.NewWriter(c.raw)
	for f := range c.send {
		c.writeFrame(w, f)
	}
}

func (c *conn) writeFrame(w *bufio.Writer, f frame) {
	if f.isPrompt && f.sensitive && !c.echoSuppressed {
		w.Write([]byte{iac, will, echo})
		c.echoSuppressed = true
	} else if (!f.isPrompt || !f.sensitive) && c.echoSuppressed {
		w.Write([]byte{iac, wont, echo})
		c.echoSuppressed = false
	}
	if f.line != "" {
		w.WriteString(f.line)
		w.WriteString("\r\n")
	}
	if f.isPrompt {
		w.WriteString("> ")
	}
	w.Flush()
	c.raw.SetWriteDeadline(time.Now().Add(10 * time.Second))
}

// readPump assembles CRLF-terminated lines from raw bytes, honoring
// backspace edits and dropping every other control byte (including
// telnet IAC negotiation sequences, which it skips rather than
// interpreting). Each completed line is handed to the engine's inbox.
func (c *conn) readPump(eng *engine.Engine) {
	r := bufio.NewReader(c.raw)
	var buf []byte
	for {
		c.raw.SetReadDeadline(time.Now().Add(idleTimeout))
		b, err := r.ReadByte()
		if err != nil {
			return
		}

		switch {
		case b == iac:
			// Negotiation sequence: IAC + (WILL/WONT/DO/DONT) + option, or
			// IAC IAC for a literal 255. Drop the whole sequence.
			if next, err := r.ReadByte(); err == nil && next != iac {
				r.ReadByte()
			}
		case b == cr:
			// swallow; lf (or its absence) ends the line
		case b == lf:
			line := string(buf)
			buf = buf[:0]
			eng.Submit(c.id, line)
		case b == backspace || b == delete7bit:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
		case b < 0x20:
			// drop other control bytes
		default:
			buf = append(buf, b)
		}
	}
}

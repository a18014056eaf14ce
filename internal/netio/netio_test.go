package netio

import (
	"bufio"
	"net"
	"testing"
	"time"
)

// fakeEngineSubmit collects lines a readPump hands off, standing in for
// engine.Engine.Submit without building a whole Engine.
type fakeEngineSubmit struct {
	lines []string
}

func (f *fakeEngineSubmit) submit(line string) { f.lines = append(f.lines, line) }

// runReadLoop mirrors conn.readPump's byte-assembly logic against a raw
// reader, without requiring a live *engine.Engine.
func runReadLoop(t *testing.T, input []byte) []string {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := &fakeEngineSubmit{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		var buf []byte
		for {
			server.SetReadDeadline(time.Now().Add(2 * time.Second))
			b, err := r.ReadByte()
			if err != nil {
				return
			}
			switch {
			case b == iac:
				if next, err := r.ReadByte(); err == nil && next != iac {
					r.ReadByte()
				}
			case b == cr:
			case b == lf:
				got.submit(string(buf))
				buf = buf[:0]
			case b == backspace || b == delete7bit:
				if len(buf) > 0 {
					buf = buf[:len(buf)-1]
				}
			case b < 0x20:
			default:
				buf = append(buf, b)
			}
		}
	}()

	client.Write(input)
	client.Close()
	<-done
	return got.lines
}

func TestReadLoopAssemblesCRLFLines(t *testing.T) {
	lines := runReadLoop(t, []byte("look\r\nsay hello\r\n"))
	if len(lines) != 2 || lines[0] != "look" || lines[1] != "say hello" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReadLoopHandlesBackspace(t *testing.T) {
	lines := runReadLoop(t, []byte("loox\x08k\r\n"))
	if len(lines) != 1 || lines[0] != "look" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestReadLoopDropsControlBytesAndIAC(t *testing.T) {
	lines := runReadLoop(t, []byte{'h', 'i', iac, will, 1, '\r', '\n'})
	if len(lines) != 1 || lines[0] != "hi" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestConnSendQueuesFrameNonBlocking(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &conn{raw: server, send: make(chan frame, writeQueueSize)}
	c.Send("hello")
	select {
	case f := <-c.send:
		if f.line != "hello" || f.isPrompt {
			t.Fatalf("unexpected frame: %#v", f)
		}
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestConnPromptMarksSensitive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &conn{raw: server, send: make(chan frame, writeQueueSize)}
	c.Prompt("Password:", true)
	f := <-c.send
	if !f.isPrompt || !f.sensitive || f.line != "Password:" {
		t.Fatalf("unexpected frame: %#v", f)
	}
}

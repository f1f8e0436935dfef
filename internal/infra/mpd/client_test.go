package mpd_test

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mercury-player/merplayer/internal/infra/mpd"
)

// fakeMPD speaks just enough of the MPD line protocol for the client.
type fakeMPD struct {
	ln        net.Listener
	mu        sync.Mutex
	commands  []string
	responses map[string]string // command name -> body before OK
}

func newFakeMPD(t *testing.T) *fakeMPD {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMPD{ln: ln, responses: map[string]string{}}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeMPD) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeMPD) handle(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	w.WriteString("OK MPD 0.23.5\n")
	w.Flush()

	r := bufio.NewScanner(conn)
	for r.Scan() {
		line := r.Text()
		name := strings.Fields(line + " x")[0]

		f.mu.Lock()
		f.commands = append(f.commands, line)
		body := f.responses[name]
		f.mu.Unlock()

		if name == "close" {
			return
		}
		w.WriteString(body)
		w.WriteString("OK\n")
		w.Flush()
	}
}

func (f *fakeMPD) client(t *testing.T) *mpd.Client {
	t.Helper()
	host, port, _ := net.SplitHostPort(f.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	c := mpd.NewClient(host, p, "")
	t.Cleanup(func() { c.Close() })
	return c
}

func (f *fakeMPD) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func containsCommand(cmds []string, want string) bool {
	for _, c := range cmds {
		if c == want {
			return true
		}
	}
	return false
}

func TestNewClientAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 6600, "localhost:6600"},
		{"::1", 6601, "[::1]:6601"},
	}
	for _, tt := range tests {
		if got := mpd.NewClient(tt.host, tt.port, "").Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}

func TestClientPingWithoutConnect(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")
	if err := client.Ping(); !errors.Is(err, mpd.ErrNotConnected) {
		t.Errorf("Ping() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on unconnected client should not error: %v", err)
	}
}

func TestClientCommandsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close() // nothing listens on port now
	p, _ := strconv.Atoi(port)
	client := mpd.NewClient("127.0.0.1", p, "")
	defer client.Close()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Connect", client.Connect},
		{"Status", func() error { _, err := client.Status(); return err }},
		{"PlayURI", func() error { return client.PlayURI("http://x/a.mp3") }},
		{"Pause", func() error { return client.Pause(true) }},
		{"Stop", client.Stop},
		{"Seek", func() error { return client.Seek(10) }},
		{"SetVolume", func() error { return client.SetVolume(50) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err == nil {
				t.Errorf("%s should fail when MPD is unreachable", tt.name)
			}
		})
	}
}

func TestClientCommands(t *testing.T) {
	f := newFakeMPD(t)
	f.responses["status"] = "volume: 40\nstate: play\nsong: 2\nelapsed: 12.5\nduration: 200.0\n"
	client := f.client(t)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status["state"] != "play" || status["elapsed"] != "12.5" {
		t.Errorf("status = %v", status)
	}

	if err := client.PlayURI("http://host/a.mp3"); err != nil {
		t.Errorf("PlayURI() error = %v", err)
	}
	if err := client.Seek(30); err != nil {
		t.Errorf("Seek() error = %v", err)
	}
	if err := client.SetVolume(150); err != nil {
		t.Errorf("SetVolume() error = %v", err)
	}
	if err := client.Pause(true); err != nil {
		t.Errorf("Pause() error = %v", err)
	}

	cmds := f.sent()
	for _, want := range []string{"clear", `add "http://host/a.mp3"`, "play 0", "seek 2 30", "setvol 100", "pause 1"} {
		if !containsCommand(cmds, want) {
			t.Errorf("command %q not sent; got %v", want, cmds)
		}
	}
}

func TestClientSeekWithoutSong(t *testing.T) {
	f := newFakeMPD(t)
	f.responses["status"] = "state: stop\n"
	client := f.client(t)

	if err := client.Seek(5); !errors.Is(err, mpd.ErrNoSong) {
		t.Errorf("Seek() error = %v, want ErrNoSong", err)
	}
}

func TestClientDialsLazily(t *testing.T) {
	f := newFakeMPD(t)
	client := f.client(t)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	cmds := f.sent()
	if !containsCommand(cmds, "stop") || !containsCommand(cmds, "clear") {
		t.Errorf("expected stop and clear, got %v", cmds)
	}
}

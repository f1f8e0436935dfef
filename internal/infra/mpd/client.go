// Package mpd drives an MPD daemon as the player's playback surface.
package mpd

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoSong is returned when seeking while MPD has no current song.
	ErrNoSong = errors.New("no song playing")

	// ErrNotConnected is returned by Ping before Connect succeeded.
	ErrNotConnected = errors.New("not connected to MPD")
)

// Client is a gompd connection that redials once when a command fails on a
// dropped connection. Commands are serialized.
type Client struct {
	mu       sync.Mutex
	conn     *mpd.Client
	addr     string
	password string
}

// NewClient creates a client for host:port. Nothing is dialed until Connect
// or the first command.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		password: password,
	}
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

// Connect dials and authenticates.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

func (c *Client) dialLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, err := mpd.DialAuthenticated("tcp", c.addr, c.password)
	if err != nil {
		return fmt.Errorf("connect to MPD at %s: %w", c.addr, err)
	}
	c.conn = conn
	log.Info().Str("addr", c.addr).Msg("Connected to MPD")
	return nil
}

// do runs fn on a live connection. If fn fails and the connection no longer
// answers ping, it redials and retries fn once.
func (c *Client) do(fn func(*mpd.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(); err != nil {
			return err
		}
	}

	err := fn(c.conn)
	if err == nil || c.conn.Ping() == nil {
		return err
	}

	log.Warn().Err(err).Str("addr", c.addr).Msg("MPD connection lost, reconnecting")
	if derr := c.dialLocked(); derr != nil {
		return errors.Join(err, derr)
	}
	return fn(c.conn)
}

// Close closes the connection. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping checks the current connection without redialing.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.Ping()
}

// Status returns the raw status attributes (state, elapsed, duration, song...).
func (c *Client) Status() (map[string]string, error) {
	var attrs mpd.Attrs
	err := c.do(func(m *mpd.Client) error {
		var err error
		attrs, err = m.Status()
		return err
	})
	return attrs, err
}

// PlayURI replaces the queue with uri and plays it.
func (c *Client) PlayURI(uri string) error {
	return c.do(func(m *mpd.Client) error {
		if err := m.Clear(); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		if err := m.Add(uri); err != nil {
			return fmt.Errorf("add %s: %w", uri, err)
		}
		return m.Play(0)
	})
}

// Pause pauses (true) or resumes (false).
func (c *Client) Pause(pause bool) error {
	return c.do(func(m *mpd.Client) error {
		return m.Pause(pause)
	})
}

// Stop stops playback and empties the queue.
func (c *Client) Stop() error {
	return c.do(func(m *mpd.Client) error {
		if err := m.Stop(); err != nil {
			return err
		}
		return m.Clear()
	})
}

// Seek moves the current song to seconds.
func (c *Client) Seek(seconds int) error {
	return c.do(func(m *mpd.Client) error {
		status, err := m.Status()
		if err != nil {
			return err
		}
		song, err := strconv.Atoi(status["song"])
		if err != nil {
			return ErrNoSong
		}
		return m.Seek(song, seconds)
	})
}

// SetVolume sets the mixer volume, clamped to 0-100.
func (c *Client) SetVolume(percent int) error {
	percent = min(max(percent, 0), 100)
	return c.do(func(m *mpd.Client) error {
		return m.SetVolume(percent)
	})
}

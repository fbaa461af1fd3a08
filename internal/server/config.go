package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort       = 8080
	DefaultTimeout    = 20 * time.Second
	DefaultCGITimeout = 60 * time.Second
	DefaultThreads    = 16
	DefaultBuffers    = 32
	MinPort           = 1
	MaxPort           = 65535
)

// Config holds all server settings. It is built once at startup, validated,
// and only read afterwards.
type Config struct {
	DocRoot string // directory where files are served from
	CGIDir  string // directory mapped to /cgi-bin/; empty disables CGI
	Address string // IPv4 or IPv6 literal to bind; empty binds all
	Port    int    // TCP port to listen on

	Threads  int    // number of workers finishing prepared requests
	Buffers  int    // capacity of the queue of prepared requests
	SchedAlg string // FCFS or SFF

	Timeout    time.Duration // how long to wait for a request head
	CGITimeout time.Duration // how long a script may run; zero means forever
}

// Validate checks c and normalizes SchedAlg to upper case.
func (c *Config) Validate() error {
	if err := isDir(c.DocRoot); err != nil {
		return fmt.Errorf("invalid dir: %w", err)
	}
	if c.CGIDir != "" {
		if err := isDir(c.CGIDir); err != nil {
			return fmt.Errorf("invalid CGI dir: %w", err)
		}
	}
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return fmt.Errorf("neither valid IPv4 nor IPv6 address %s", c.Address)
	}
	if c.Port < MinPort || c.Port > MaxPort {
		return fmt.Errorf("port must be between %d and %d", MinPort, MaxPort)
	}
	if c.Threads <= 0 || c.Buffers <= 0 {
		return fmt.Errorf("threads and buffers must be positive")
	}
	c.SchedAlg = strings.ToUpper(c.SchedAlg)
	if c.SchedAlg != "FCFS" && c.SchedAlg != "SFF" {
		return fmt.Errorf("unsupported schedule algorithm %q (must be FCFS or SFF)", c.SchedAlg)
	}
	if c.Timeout < 0 || c.CGITimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// ListenAddr is the host:port string handed to net.Listen.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func isDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no directory given")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

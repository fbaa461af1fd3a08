package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cooperbraun13/sws/internal/accesslog"
	"github.com/cooperbraun13/sws/internal/server"
)

func TestParseArgsDefaults(t *testing.T) {
	o, err := parseArgs([]string{"www"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := o.cfg
	if cfg.DocRoot != "www" || cfg.Port != server.DefaultPort || cfg.SchedAlg != "FCFS" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Threads != server.DefaultThreads || cfg.Buffers != server.DefaultBuffers {
		t.Errorf("pool %d/%d, want %d/%d", cfg.Threads, cfg.Buffers, server.DefaultThreads, server.DefaultBuffers)
	}
	if cfg.Timeout != server.DefaultTimeout {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.CGITimeout != server.DefaultCGITimeout || cfg.CGITimeout <= 0 {
		t.Errorf("CGITimeout = %v, want a bounded default", cfg.CGITimeout)
	}
}

func TestParseArgs(t *testing.T) {
	o, err := parseArgs(strings.Fields("-d -c cgi -i ::1 -l access.log -p 9000 -t 4 -b 8 -s sff -T 5s -C 2s www"))
	if err != nil {
		t.Fatal(err)
	}
	want := server.Config{
		DocRoot:    "www",
		CGIDir:     "cgi",
		Address:    "::1",
		Port:       9000,
		Threads:    4,
		Buffers:    8,
		SchedAlg:   "sff",
		Timeout:    5 * time.Second,
		CGITimeout: 2 * time.Second,
	}
	if o.cfg != want {
		t.Errorf("got %+v, want %+v", o.cfg, want)
	}
	if !o.debug || o.logFile != "access.log" {
		t.Errorf("debug=%v logFile=%q", o.debug, o.logFile)
	}
}

func TestParseArgsErrors(t *testing.T) {
	// keep usage output out of the test log
	stderr := os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)
	defer func() { os.Stderr = stderr }()

	if _, err := parseArgs(nil); err == nil {
		t.Error("missing directory accepted")
	}
	if _, err := parseArgs([]string{"a", "b"}); err == nil {
		t.Error("two directories accepted")
	}
	if _, err := parseArgs([]string{"-p", "http", "www"}); err == nil {
		t.Error("non-numeric port accepted")
	}
	if _, err := parseArgs([]string{"-x", "www"}); err == nil || errors.Is(err, flag.ErrHelp) {
		t.Errorf("unknown flag: %v", err)
	}
	o, err := parseArgs([]string{"-h"})
	if err != nil || !o.help {
		t.Errorf("-h: help=%v err=%v", o.help, err)
	}
}

func TestOpenAccessLog(t *testing.T) {
	sink, closer, err := openAccessLog(false, "")
	if err != nil || closer != nil || sink != accesslog.Discard {
		t.Errorf("no destination: sink=%v closer=%v err=%v", sink, closer, err)
	}

	p := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(p, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink, closer, err = openAccessLog(false, p)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Log(accesslog.Record{RemoteIP: "192.0.2.1", RequestLine: "GET / HTTP/1.0", Status: 200}); err != nil {
		t.Fatal(err)
	}
	closer.Close()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "old\n192.0.2.1 [") {
		t.Errorf("log not appended: %q", b)
	}

	if _, _, err := openAccessLog(false, filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("unwritable log file accepted")
	}
}

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type result struct {
	path    string
	status  string
	bytes   int64
	elapsed time.Duration
}

// sendRequest issues one HTTP/1.0 request and reads until the server closes.
func sendRequest(addr, method, path string, timeout time.Duration) (result, error) {
	r := result{path: path}
	start := time.Now()
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return r, fmt.Errorf("dial error: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(start.Add(timeout))

	if _, err := fmt.Fprintf(conn, "%s %s HTTP/1.0\r\n\r\n", method, path); err != nil {
		return r, fmt.Errorf("write error: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return r, fmt.Errorf("read status line: %w", err)
	}
	r.status = strings.TrimRight(line, "\r\n")

	// drop the rest, counting it
	n, err := io.Copy(io.Discard, reader)
	r.bytes = int64(len(line)) + n
	r.elapsed = time.Since(start)
	if err != nil {
		return r, fmt.Errorf("read response: %w", err)
	}
	return r, nil
}

func main() {
	var (
		addr    string
		method  string
		rounds  int
		timeout time.Duration
	)
	flag.StringVar(&addr, "a", "localhost:8080", "server address")
	flag.StringVar(&method, "m", "GET", "request method")
	flag.IntVar(&rounds, "n", 10, "requests per path")
	flag.DurationVar(&timeout, "T", 30*time.Second, "per-request timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: client [-a addr] [-m method] [-n rounds] [-T timeout] [path ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{"/big.html", "/small.html"}
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	var (
		wg     sync.WaitGroup
		failed sync.Map
	)
	// paths are interleaved so scheduling differences are observable
	for i := 0; i < rounds; i++ {
		for _, p := range paths {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := sendRequest(addr, method, p, timeout)
				if err != nil {
					log.Error().Err(err).Str("path", p).Msg("request failed")
					failed.Store(p, true)
					return
				}
				fmt.Printf("%s -> %s (%d bytes, %s)\n", r.path, r.status, r.bytes, r.elapsed.Round(time.Millisecond))
			}()
		}
	}
	wg.Wait()

	exit := 0
	failed.Range(func(_, _ any) bool {
		exit = 1
		return false
	})
	os.Exit(exit)
}

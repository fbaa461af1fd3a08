package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cooperbraun13/sws/internal/accesslog"
	"github.com/cooperbraun13/sws/internal/server"
)

const usageText = `usage: sws [-dh] [-c dir] [-i address] [-l file] [-p port]
           [-t threads] [-b buffers] [-s FCFS|SFF] [-T timeout]
           [-C timeout] dir

  -c dir      allow execution of CGIs from the given directory
  -d          debug mode: log access and diagnostics to stdout
  -h          print this usage summary and exit
  -i address  bind to the given IPv4 or IPv6 address
  -l file     log all requests to the given file
  -p port     listen on the given port (default 8080)
  -t threads  worker pool size (default 16)
  -b buffers  queue capacity for prepared requests (default 32)
  -s alg      scheduling algorithm, FCFS or SFF (default FCFS)
  -T timeout  how long to wait on a stalled client (default 20s)
  -C timeout  how long a CGI script may run, 0 for no limit (default 1m)
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func newLogger(debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if debug {
		w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// openAccessLog picks the access log destination. Debug mode wins over -l.
func openAccessLog(debug bool, file string) (accesslog.Sink, io.Closer, error) {
	switch {
	case debug:
		return accesslog.NewWriter(os.Stdout), nil, nil
	case file != "":
		f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return accesslog.NewWriter(f), f, nil
	default:
		return accesslog.Discard, nil, nil
	}
}

// options is everything the command line decides.
type options struct {
	cfg     server.Config
	debug   bool
	help    bool
	logFile string
}

// parseArgs fills options from args (without the program name).
func parseArgs(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("sws", flag.ContinueOnError)
	fs.Usage = usage
	fs.StringVar(&o.cfg.CGIDir, "c", "", "CGI directory")
	fs.BoolVar(&o.debug, "d", false, "debug mode")
	fs.BoolVar(&o.help, "h", false, "print usage")
	fs.StringVar(&o.cfg.Address, "i", "", "address to bind")
	fs.StringVar(&o.logFile, "l", "", "access log file")
	fs.IntVar(&o.cfg.Port, "p", server.DefaultPort, "port")
	fs.IntVar(&o.cfg.Threads, "t", server.DefaultThreads, "worker threads")
	fs.IntVar(&o.cfg.Buffers, "b", server.DefaultBuffers, "buffer size")
	fs.StringVar(&o.cfg.SchedAlg, "s", "FCFS", "scheduling algorithm (FCFS or SFF)")
	fs.DurationVar(&o.cfg.Timeout, "T", server.DefaultTimeout, "client timeout")
	fs.DurationVar(&o.cfg.CGITimeout, "C", server.DefaultCGITimeout, "CGI script timeout")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.help {
		return o, nil
	}
	if fs.NArg() != 1 {
		return o, fmt.Errorf("expected exactly one directory, got %d arguments", fs.NArg())
	}
	o.cfg.DocRoot = fs.Arg(0)
	return o, nil
}

func main() {
	o, err := parseArgs(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
			usage()
		}
		os.Exit(1)
	}
	if o.help {
		usage()
		os.Exit(0)
	}
	cfg := o.cfg

	log := newLogger(o.debug)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	access, closer, err := openAccessLog(o.debug, o.logFile)
	if err != nil {
		log.Fatal().Err(err).Msg("access log")
	}
	if closer != nil {
		defer closer.Close()
	}

	h := server.NewHandler(cfg, access, log)
	if err := server.New(cfg, h, log).ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

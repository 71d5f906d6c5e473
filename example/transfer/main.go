// Command transfer moves a file through a simulated or piped visual channel.
//
//	transfer simulate -in data.json --loss 0.4
//	transfer send -in data.json | transfer receive -out copy.json
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/pitscout/fountain"
	"github.com/pitscout/fountain/internal/logging"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const usage = "usage: transfer simulate|send|receive [flags]"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd := args[0]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	configPath := fs.String("config", "", "config file (yaml, toml or json)")
	in := fs.String("in", "", "payload file, stdin if empty")
	out := fs.String("out", "", "output file, stdout if empty")
	frames := fs.Int("frames", 0, "stop after this many frames, 0 for no limit")
	addFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, fs)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	fcfg, err := cfg.fountainConfig(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd {
	case "simulate":
		payload, err := readInput(*in)
		if err != nil {
			return err
		}
		return simulate(ctx, fcfg, payload, cfg.Loss, cfg.QueueLen, logger)
	case "send":
		payload, err := readInput(*in)
		if err != nil {
			return err
		}
		return send(ctx, fcfg, payload, *frames, os.Stdout)
	case "receive":
		payload, err := receive(ctx, fcfg, os.Stdin, cfg.QueueLen)
		if err != nil {
			return err
		}
		return writeOutput(*out, payload)
	default:
		return errors.New(usage)
	}
}

// result is what a resultHandler got told about a session.
type result struct {
	sessionID string
	payload   []byte
	err       error
}

type resultHandler struct {
	results chan result
}

var _ fountain.PayloadHandler = &resultHandler{}

func newResultHandler() *resultHandler {
	return &resultHandler{results: make(chan result, 1)}
}

func (h *resultHandler) HandlePayload(id string, payload []byte) {
	select {
	case h.results <- result{sessionID: id, payload: payload}:
	default:
	}
}

func (h *resultHandler) HandleFailure(id string, err error) {
	select {
	case h.results <- result{sessionID: id, err: err}:
	default:
	}
}

// simulate runs a transmitter and a collector connected by a channel that loses frames.
func simulate(ctx context.Context, fcfg *fountain.Config, payload []byte, loss float64, queueLen int, logger *zap.Logger) error {
	handler := newResultHandler()
	fcfg.Handler = handler
	tx, err := fountain.NewTransmitter(payload, fcfg)
	if err != nil {
		return err
	}
	collector, err := fountain.NewCollector(fcfg)
	if err != nil {
		return err
	}
	q := fountain.NewScanQueue(queueLen)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var shown, missed, overflowed int
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		defer q.Close()
		err := tx.Run(ctx, func(frame string) error {
			shown++
			if rng.Float64() < loss {
				missed++
				return nil
			}
			if err := q.Add(frame); err != nil {
				if errors.Is(err, fountain.ErrQueueFull) {
					overflowed++
					return nil
				}
				return err
			}
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := collector.Consume(ctx, q)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	var res result
	select {
	case res = <-handler.results:
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if res.sessionID == "" {
		return errors.New("interrupted before the transfer completed")
	}
	if res.err != nil {
		return res.err
	}
	if !bytes.Equal(res.payload, payload) {
		return errors.New("received payload differs from the sent one")
	}

	k := tx.Header().K
	logger.Info("transfer simulated",
		zap.String("session", res.sessionID),
		zap.Int("k", k),
		zap.Int("frames_shown", shown),
		zap.Int("frames_missed", missed),
		zap.Int("frames_overflowed", overflowed),
		zap.Float64("overhead", float64(shown-missed-overflowed)/float64(k)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// send writes one frame per line until ctx is done or the frame limit is reached.
func send(ctx context.Context, fcfg *fountain.Config, payload []byte, limit int, w io.Writer) error {
	tx, err := fountain.NewTransmitter(payload, fcfg)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	errDone := errors.New("frame limit reached")
	var n int
	err = tx.Run(ctx, func(frame string) error {
		if limit > 0 && n == limit {
			return errDone
		}
		n++
		if _, err := fmt.Fprintln(bw, frame); err != nil {
			return err
		}
		return bw.Flush()
	})
	if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// receive scans one frame per line from r until a session completes.
func receive(ctx context.Context, fcfg *fountain.Config, r io.Reader, queueLen int) ([]byte, error) {
	handler := newResultHandler()
	fcfg.Handler = handler
	collector, err := fountain.NewCollector(fcfg)
	if err != nil {
		return nil, err
	}
	q := fountain.NewScanQueue(queueLen)
	defer q.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumed := make(chan error, 1)
	go func() { consumed <- collector.Consume(ctx, q) }()

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			for {
				err := q.Add(line)
				if errors.Is(err, fountain.ErrQueueClosed) {
					return
				}
				if !errors.Is(err, fountain.ErrQueueFull) {
					break
				}
				time.Sleep(time.Millisecond)
			}
		}
		q.CloseWithError(scanner.Err())
	}()

	select {
	case res := <-handler.results:
		return res.payload, res.err
	case err := <-consumed:
		// the queue was drained without a complete session
		select {
		case res := <-handler.results:
			return res.payload, res.err
		default:
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, b []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

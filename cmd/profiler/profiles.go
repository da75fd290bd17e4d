package main

import (
	"errors"
	"log"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/felixge/fgprof"
)

func servePprof(addr string) {
	log.Printf("pprof listening on %s", addr)
	//nolint:gosec // intentional pprof server without timeouts for profiling
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Printf("pprof server error: %v", err)
	}
}

// startProfiles starts every profiler named in cfg. The returned function
// stops them in reverse order and closes their files.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func startProfiles(cfg config) (func(), error) {
	var stops []func() error
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](); err != nil {
				log.Printf("stop profile: %v", err)
			}
		}
	}

	starters := []struct {
		path  string
		start func(*os.File) (func() error, error)
	}{
		{cfg.fgProfile, func(f *os.File) (func() error, error) {
			return fgprof.Start(f, fgprof.FormatPprof), nil
		}},
		{cfg.cpuProfile, func(f *os.File) (func() error, error) {
			if err := pprof.StartCPUProfile(f); err != nil {
				return nil, err
			}
			return func() error { pprof.StopCPUProfile(); return nil }, nil
		}},
		{cfg.traceFile, func(f *os.File) (func() error, error) {
			if err := trace.Start(f); err != nil {
				return nil, err
			}
			return func() error { trace.Stop(); return nil }, nil
		}},
	}
	for _, s := range starters {
		if s.path == "" {
			continue
		}
		f, err := os.Create(s.path)
		if err != nil {
			stop()
			return nil, err
		}
		end, err := s.start(f)
		if err != nil {
			_ = f.Close()
			stop()
			return nil, err
		}
		stops = append(stops, func() error { return errors.Join(end(), f.Close()) })
	}
	return stop, nil
}

func writeHeapProfile(path string) error {
	if path == "" {
		return nil
	}
	runtime.GC()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return errors.Join(pprof.WriteHeapProfile(f), f.Close())
}

package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"kalshorb/internal/config"
)

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	if !dirExists(dir) {
		t.Fatalf("expected dir to exist")
	}
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if dirExists(file) {
		t.Fatalf("expected file to not be dir")
	}
	if dirExists(filepath.Join(dir, "missing")) {
		t.Fatalf("expected missing path to be false")
	}
}

func TestResolveWebDir(t *testing.T) {
	tmp := t.TempDir()
	staticDir := filepath.Join(tmp, "static")
	if err := os.MkdirAll(staticDir, 0o755); err != nil {
		t.Fatalf("mkdir static: %v", err)
	}

	if got := resolveWebDir(staticDir); got != staticDir {
		t.Fatalf("expected input dir, got %q", got)
	}
	if got := resolveWebDir(filepath.Join(tmp, "missing")); got != "" {
		t.Fatalf("expected empty for missing, got %q", got)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if got := resolveWebDir(""); got != "static" {
		t.Fatalf("expected static, got %q", got)
	}
}

func TestWatchParentExits(t *testing.T) {
	origGetppid := getppid
	origSleep := sleep
	origExit := exit
	defer func() {
		getppid = origGetppid
		sleep = origSleep
		exit = origExit
	}()

	getppid = func() int { return 1 }
	sleep = func(time.Duration) {}

	done := make(chan struct{})
	exit = func(code int) {
		close(done)
		runtime.Goexit()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	go watchParent(logger)

	select {
	case <-done:
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("watchParent did not exit")
	}
}

func TestMainLifecycle(t *testing.T) {
	tmp := t.TempDir()

	origArgs := os.Args
	origCommandLine := flag.CommandLine
	defer func() {
		os.Args = origArgs
		flag.CommandLine = origCommandLine
	}()

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = []string{
		"server",
		"--data-dir", tmp,
		"--port", "0",
		"--host", "127.0.0.1",
		"--env-file", filepath.Join(tmp, "missing.env"),
	}
	t.Setenv("KALSHORB_STORE_DRIVER", "sqlite")

	done := make(chan struct{})
	go func() {
		time.Sleep(500 * time.Millisecond)
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Signal(syscall.SIGTERM)
		}
	}()

	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
		// ok
	case <-time.After(5 * time.Second):
		t.Fatalf("main did not exit")
	}
}

func TestFlagsApply(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "0.0.0.0"
	f := flags{
		dataDir:  "/data",
		port:     9000,
		host:     "127.0.0.1",
		logLevel: "debug",
		set:      map[string]bool{"port": true, "log-level": true},
	}
	f.apply(&cfg)

	if cfg.Server.Port != 9000 || cfg.Log.Level != "debug" {
		t.Fatalf("explicit flags not applied: %+v", cfg.Server)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("unset flag overrode config host: %s", cfg.Server.Host)
	}
	if cfg.Store.SQLitePath != filepath.Join("/data", "kalshorb.db") || cfg.Log.Dir != filepath.Join("/data", "logs") {
		t.Fatalf("data dir not applied: %q %q", cfg.Store.SQLitePath, cfg.Log.Dir)
	}

	cfg.Store.SQLitePath = "/explicit.db"
	f.apply(&cfg)
	if cfg.Store.SQLitePath != "/explicit.db" {
		t.Fatalf("data dir must not replace an explicit db path")
	}
}

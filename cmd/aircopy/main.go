package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"aircopy/app"
	"aircopy/config"
	"aircopy/discovery"
	"aircopy/history"
	"aircopy/peertable"
	"aircopy/transfer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "listen":
		runListenCmd(os.Args[2:])
	case "send":
		runSendCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: aircopy listen | aircopy send <device-id> <path>...")
}

func loadConfig() (*config.DeviceConfig, string, *history.Store, error) {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}

	downloadDir, err := app.ResolveDownloadDir(cfg.DownloadDir)
	if err != nil {
		return nil, "", nil, fmt.Errorf("resolve download dir: %w", err)
	}
	cfg.DownloadDir = downloadDir

	hist, err := history.Open(filepath.Dir(cfgPath))
	if err != nil {
		return nil, "", nil, fmt.Errorf("open history store: %w", err)
	}

	return cfg, cfgPath, hist, nil
}

func runListenCmd(args []string) {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	autoAccept := fs.Bool("yes", false, "accept every incoming transfer without prompting")
	fs.Parse(args)

	cfg, _, hist, err := loadConfig()
	if err != nil {
		log.Fatalf("aircopy: %v", err)
	}
	defer hist.Close()

	fmt.Printf("device_id:    %s\n", cfg.DeviceID)
	fmt.Printf("alias:        %s\n", cfg.Alias)
	fmt.Printf("listen_port:  %d\n", cfg.ListenPort)
	fmt.Printf("download_dir: %s\n", cfg.DownloadDir)

	table := peertable.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	onOffer := func(offer transfer.Offer) bool {
		if *autoAccept {
			return true
		}
		return promptAccept(offer)
	}
	onProgress := func(p transfer.Progress) {
		fmt.Printf("received %s (%d/%d)\n", p.FilePath, p.FileIndex+1, p.TotalFiles)
	}

	if err := app.RunListen(ctx, app.FromDeviceConfig(cfg), table, hist, onOffer, onProgress); err != nil {
		log.Fatalf("aircopy: listen failed: %v", err)
	}
}

func runSendCmd(args []string) {
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	peerDeviceID := args[0]
	paths := args[1:]

	cfg, _, hist, err := loadConfig()
	if err != nil {
		log.Fatalf("aircopy: %v", err)
	}
	defer hist.Close()

	var files []transfer.FileEntry
	for _, p := range paths {
		entries, err := walkFiles(p)
		if err != nil {
			log.Fatalf("aircopy: enumerate %q: %v", p, err)
		}
		files = append(files, entries...)
	}
	if len(files) == 0 {
		log.Fatalf("aircopy: no files to send")
	}

	table := peertable.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		l := &discovery.Listener{DeviceID: cfg.DeviceID, ListenPort: cfg.ListenPort, Table: table}
		if err := l.Run(ctx); err != nil {
			logrus.WithError(err).Warn("aircopy: discovery listener stopped")
		}
	}()

	if !waitForPeer(ctx, table, peerDeviceID, 6*time.Second) {
		log.Fatalf("aircopy: peer %q not found within 6s", peerDeviceID)
	}

	onProgress := func(p transfer.Progress) {
		fmt.Printf("sent %s (%d/%d)\n", p.FilePath, p.FileIndex+1, p.TotalFiles)
	}

	if err := app.RunSend(app.FromDeviceConfig(cfg), table, peerDeviceID, files, hist, onProgress); err != nil {
		log.Fatalf("aircopy: send failed: %v", err)
	}
}

func promptAccept(offer transfer.Offer) bool {
	fmt.Printf("%s (%s) wants to send %d file(s), %d bytes. Accept? [y/N] ", offer.Alias, offer.DeviceID, offer.TotalFiles, offer.TotalSize)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

// walkFiles enumerates path into a flat list of FileEntry, relative to
// path's own parent directory if path is a directory, or a single entry
// if path is a regular file. Local directory enumeration is a
// collaborator boundary; this implementation is intentionally minimal.
func walkFiles(path string) ([]transfer.FileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []transfer.FileEntry{{
			RelativePath: filepath.Base(path),
			AbsolutePath: path,
			Size:         uint64(info.Size()),
			Modified:     info.ModTime().Unix(),
		}}, nil
	}

	base := filepath.Dir(path)
	var entries []transfer.FileEntry
	err = filepath.Walk(path, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		entries = append(entries, transfer.FileEntry{
			RelativePath: filepath.ToSlash(rel),
			AbsolutePath: p,
			Size:         uint64(fi.Size()),
			Modified:     fi.ModTime().Unix(),
		})
		return nil
	})
	return entries, err
}

func waitForPeer(ctx context.Context, table *peertable.Table, deviceID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, ok := table.Lookup(deviceID); ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	_, ok := table.Lookup(deviceID)
	return ok
}


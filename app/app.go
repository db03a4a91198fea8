// Package app wires discovery, the peer table, and the transfer server
// and client together behind the two entry points the CLI collaborator
// calls: RunListen and RunSend.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"aircopy/config"
	"aircopy/discovery"
	"aircopy/history"
	"aircopy/peertable"
	"aircopy/transfer"
)

// Config is the resolved configuration both entry points operate on.
type Config struct {
	DeviceID    string
	Alias       string
	ListenPort  uint16
	DownloadDir string
}

// FromDeviceConfig adapts a config.DeviceConfig (with its download_dir
// already "~"-expanded by the caller) into an app.Config.
func FromDeviceConfig(cfg *config.DeviceConfig) Config {
	return Config{
		DeviceID:    cfg.DeviceID,
		Alias:       cfg.Alias,
		ListenPort:  cfg.ListenPort,
		DownloadDir: cfg.DownloadDir,
	}
}

const staleAfterSeconds = 15

// RunListen starts the discovery broadcaster/listener and the transfer
// server, and runs until ctx is canceled. table is populated by the
// discovery listener as peers announce themselves, and is also what a
// concurrent RunSend call looks peers up in. onOffer decides whether to
// accept an incoming transfer; onProgress reports per-file completion.
func RunListen(ctx context.Context, cfg Config, table *peertable.Table, hist *history.Store, onOffer func(transfer.Offer) bool, onProgress func(transfer.Progress)) error {
	broadcaster := &discovery.Broadcaster{DeviceID: cfg.DeviceID, Alias: cfg.Alias, ListenPort: cfg.ListenPort}
	listener := &discovery.Listener{DeviceID: cfg.DeviceID, ListenPort: cfg.ListenPort, Table: table}

	server, err := transfer.Listen(fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("app: start transfer server: %w", err)
	}
	server.DownloadDir = cfg.DownloadDir
	server.OnOffer = onOffer
	server.OnProgress = onProgress
	server.OnComplete = func(offer transfer.Offer, accepted bool, err error) {
		recordReceived(hist, offer, accepted, err)
	}

	errs := make(chan error, 3)
	go func() { errs <- broadcaster.Run(ctx) }()
	go func() { errs <- listener.Run(ctx) }()
	go func() { errs <- server.Run(ctx) }()

	go staleEvictionLoop(ctx, table)

	select {
	case <-ctx.Done():
		server.Close()
		return nil
	case err := <-errs:
		server.Close()
		return err
	}
}

// RunSend dials peer (looked up by device id in table) and sends files.
// It returns ErrTransferRejected if the peer declines.
func RunSend(cfg Config, table *peertable.Table, peerDeviceID string, files []transfer.FileEntry, hist *history.Store, onProgress func(transfer.Progress)) error {
	peer, ok := table.Lookup(peerDeviceID)
	if !ok {
		return fmt.Errorf("app: peer %q not found in table", peerDeviceID)
	}

	client := &transfer.Client{DeviceID: cfg.DeviceID, Alias: cfg.Alias, OnProgress: onProgress}
	addr := fmt.Sprintf("%s:%d", peer.Address, peer.Port)

	started := time.Now().Unix()
	transferID, err := client.Send(addr, files)
	finished := time.Now().Unix()

	if hist != nil {
		status := "completed"
		errText := ""
		if err != nil {
			status = "failed"
			if err == transfer.ErrTransferRejected {
				status = "rejected"
			}
			errText = err.Error()
		}

		var totalSize uint64
		for _, f := range files {
			totalSize += f.Size
		}

		if recErr := hist.Record(history.Record{
			TransferID:   transferID,
			Direction:    "sent",
			PeerDeviceID: peer.DeviceID,
			PeerAlias:    peer.Alias,
			TotalFiles:   len(files),
			TotalSize:    totalSize,
			Status:       status,
			Error:        errText,
			StartedAt:    started,
			FinishedAt:   finished,
		}); recErr != nil {
			logrus.WithError(recErr).Warn("app: failed to record transfer history")
		}
	}

	return err
}

func recordReceived(hist *history.Store, offer transfer.Offer, accepted bool, err error) {
	if hist == nil {
		return
	}

	status := "completed"
	errText := ""
	switch {
	case !accepted:
		status = "rejected"
	case err != nil:
		status = "failed"
		errText = err.Error()
	}

	now := time.Now().Unix()
	if recErr := hist.Record(history.Record{
		TransferID:   offer.TransferID,
		Direction:    "received",
		PeerDeviceID: offer.DeviceID,
		PeerAlias:    offer.Alias,
		TotalFiles:   offer.TotalFiles,
		TotalSize:    offer.TotalSize,
		Status:       status,
		Error:        errText,
		StartedAt:    now,
		FinishedAt:   now,
	}); recErr != nil {
		logrus.WithError(recErr).Warn("app: failed to record transfer history")
	}
}

func staleEvictionLoop(ctx context.Context, table *peertable.Table) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			table.RemoveStale(peertable.Now(), staleAfterSeconds)
		}
	}
}

// ResolveDownloadDir expands "~" and ensures the directory exists.
func ResolveDownloadDir(raw string) (string, error) {
	expanded, err := config.ExpandDownloadDir(raw)
	if err != nil {
		return "", err
	}
	dir := filepath.Clean(expanded)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("app: create download dir %q: %w", dir, err)
	}
	return dir, nil
}

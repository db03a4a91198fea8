package transfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"aircopy/protocol"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSingleFileLoopbackSuccess(t *testing.T) {
	srcDir := t.TempDir()
	downloadDir := t.TempDir()
	srcPath := writeTempFile(t, srcDir, "hello.txt", "hello world")

	serverConn, clientConn := net.Pipe()

	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return true }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	client := &Client{DeviceID: "sender", Alias: "desk"}
	if _, err := client.sendOverConn(clientConn, []FileEntry{
		{RelativePath: "hello.txt", AbsolutePath: srcPath, Size: 11},
	}); err != nil {
		t.Fatalf("client side failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(downloadDir, "hello.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("downloaded content = %q, want %q", got, "hello world")
	}
}

func TestRejectionLeavesDownloadDirEmpty(t *testing.T) {
	srcDir := t.TempDir()
	downloadDir := t.TempDir()
	srcPath := writeTempFile(t, srcDir, "secret.txt", "nope")

	serverConn, clientConn := net.Pipe()
	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return false }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	client := &Client{DeviceID: "sender", Alias: "desk"}
	_, err := client.sendOverConn(clientConn, []FileEntry{
		{RelativePath: "secret.txt", AbsolutePath: srcPath, Size: 4},
	})
	if err != ErrTransferRejected {
		t.Fatalf("Send() error = %v, want ErrTransferRejected", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}

	entries, _ := os.ReadDir(downloadDir)
	if len(entries) != 0 {
		t.Fatalf("download dir has %d entries after rejection, want 0", len(entries))
	}
}

func TestChecksumMismatchDeletesPartialFile(t *testing.T) {
	downloadDir := t.TempDir()
	serverConn, clientConn := net.Pipe()
	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return true }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	if err := protocol.WriteMessage(clientConn, protocol.Message{
		Kind: protocol.KindTransferOffer,
		TransferOffer: &protocol.TransferOfferPayload{
			TransferID: "t1",
			Files:      []protocol.FileInfo{{ID: "f1", Path: "bad.txt", Size: 4}},
			TotalSize:  4,
			TotalFiles: 1,
		},
	}); err != nil {
		t.Fatalf("write offer: %v", err)
	}

	resp, err := protocol.ReadMessage(clientConn)
	if err != nil || !resp.TransferResponse.Accepted {
		t.Fatalf("expected acceptance, got resp=%+v err=%v", resp, err)
	}

	if err := protocol.WriteMessage(clientConn, protocol.Message{
		Kind:       protocol.KindFileHeader,
		FileHeader: &protocol.FileHeaderPayload{ID: "f1", Path: "bad.txt", Size: 4},
	}); err != nil {
		t.Fatalf("write file_header: %v", err)
	}
	if _, err := clientConn.Write([]byte("data")); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := protocol.WriteMessage(clientConn, protocol.Message{
		Kind:         protocol.KindFileComplete,
		FileComplete: &protocol.FileCompletePayload{ID: "f1", Checksum: "0000000000000000000000000000000000000000000000000000000000000"},
	}); err != nil {
		t.Fatalf("write file_complete: %v", err)
	}

	err = <-done
	if err == nil {
		t.Fatal("server accepted a bad checksum")
	}

	if _, statErr := os.Stat(filepath.Join(downloadDir, "bad.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("partial file still exists after checksum mismatch: %v", statErr)
	}
}

func TestZeroFileTransferCompletesImmediately(t *testing.T) {
	downloadDir := t.TempDir()
	serverConn, clientConn := net.Pipe()
	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return true }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	client := &Client{DeviceID: "sender", Alias: "desk"}
	if _, err := client.sendOverConn(clientConn, nil); err != nil {
		t.Fatalf("client side failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
}

func TestMultiFileOrderingIncludingZeroByteFile(t *testing.T) {
	srcDir := t.TempDir()
	downloadDir := t.TempDir()

	pathA := writeTempFile(t, srcDir, "a.txt", "0123456789")
	pathB := writeTempFile(t, srcDir, "b.txt", "")
	pathC := writeTempFile(t, srcDir, "c.txt", "9876543210")

	serverConn, clientConn := net.Pipe()
	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return true }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	client := &Client{DeviceID: "sender", Alias: "desk"}
	_, err := client.sendOverConn(clientConn, []FileEntry{
		{RelativePath: "a.txt", AbsolutePath: pathA, Size: 10},
		{RelativePath: "b.txt", AbsolutePath: pathB, Size: 0},
		{RelativePath: "c.txt", AbsolutePath: pathC, Size: 10},
	})
	if err != nil {
		t.Fatalf("client side failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(downloadDir, "b.txt")); statErr != nil {
		t.Fatalf("zero-byte file b.txt missing: %v", statErr)
	}
	for _, name := range []string{"a.txt", "c.txt"} {
		if _, statErr := os.Stat(filepath.Join(downloadDir, name)); statErr != nil {
			t.Fatalf("%s missing: %v", name, statErr)
		}
	}
}

func TestPathTraversalRejectedBeforeFileCreation(t *testing.T) {
	downloadDir := t.TempDir()
	serverConn, clientConn := net.Pipe()
	server := &Server{DownloadDir: downloadDir, OnOffer: func(Offer) bool { return true }}

	done := make(chan error, 1)
	go func() { done <- server.handleConn(serverConn) }()

	if err := protocol.WriteMessage(clientConn, protocol.Message{
		Kind: protocol.KindTransferOffer,
		TransferOffer: &protocol.TransferOfferPayload{
			TransferID: "t1",
			Files:      []protocol.FileInfo{{ID: "f1", Path: "../evil.txt", Size: 4}},
			TotalSize:  4,
			TotalFiles: 1,
		},
	}); err != nil {
		t.Fatalf("write offer: %v", err)
	}

	resp, err := protocol.ReadMessage(clientConn)
	if err != nil || !resp.TransferResponse.Accepted {
		t.Fatalf("expected acceptance, got resp=%+v err=%v", resp, err)
	}

	if err := protocol.WriteMessage(clientConn, protocol.Message{
		Kind:       protocol.KindFileHeader,
		FileHeader: &protocol.FileHeaderPayload{ID: "f1", Path: "../evil.txt", Size: 4},
	}); err != nil {
		t.Fatalf("write file_header: %v", err)
	}

	err = <-done
	if err == nil {
		t.Fatal("server accepted a path-traversal file_header")
	}

	evilPath := filepath.Join(filepath.Dir(downloadDir), "evil.txt")
	if _, statErr := os.Stat(evilPath); !os.IsNotExist(statErr) {
		t.Fatalf("file was created outside download dir: %v", statErr)
	}
}


package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"aircopy/identity"
	"aircopy/protocol"
)

// Client drives the send-side state machine against one peer.
type Client struct {
	DeviceID string
	Alias    string

	OnProgress func(Progress)

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Send dials addr, offers files, and streams them on acceptance. It
// returns ErrTransferRejected if the peer declines, and any I/O or
// protocol error encountered past that point is fatal for the session.
func (c *Client) Send(addr string, files []FileEntry) (string, error) {
	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return "", fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	tuneConn(conn)

	return c.sendOverConn(conn, files)
}

// sendOverConn runs the send-side state machine over an already-open
// connection. Split out of Send so it can be driven directly against a
// net.Pipe in tests, which have no listener to dial.
func (c *Client) sendOverConn(conn net.Conn, files []FileEntry) (string, error) {
	transferID := identity.NewTransferID()

	var totalSize uint64
	wireFiles := make([]protocol.FileInfo, len(files))
	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = identity.NewFileID()
		wireFiles[i] = protocol.FileInfo{ID: fileIDs[i], Path: f.RelativePath, Size: f.Size, Modified: f.Modified}
		totalSize += f.Size
	}

	c.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.Message{
		Kind: protocol.KindTransferOffer,
		TransferOffer: &protocol.TransferOfferPayload{
			TransferID: transferID,
			DeviceID:   c.DeviceID,
			Alias:      c.Alias,
			Files:      wireFiles,
			TotalSize:  totalSize,
			TotalFiles: uint32(len(files)),
		},
	}); err != nil {
		return "", fmt.Errorf("transfer: send offer: %w", err)
	}

	c.applyDeadline(conn)
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return "", fmt.Errorf("transfer: await response: %w", err)
	}
	if msg.Kind != protocol.KindTransferResponse {
		return "", fmt.Errorf("transfer: await response: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}
	if !msg.TransferResponse.Accepted {
		return transferID, ErrTransferRejected
	}

	for i, f := range files {
		if err := c.sendFile(conn, f, fileIDs[i], i, len(files), transferID); err != nil {
			return transferID, err
		}
	}

	c.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.NewTransferComplete()); err != nil {
		return transferID, fmt.Errorf("transfer: send transfer_complete: %w", err)
	}

	c.applyDeadline(conn)
	msg, err = protocol.ReadMessage(conn)
	if err != nil {
		return transferID, fmt.Errorf("transfer: await ack: %w", err)
	}
	if msg.Kind != protocol.KindAck {
		return transferID, fmt.Errorf("transfer: await ack: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}
	return transferID, nil
}

func (c *Client) sendFile(conn net.Conn, f FileEntry, fileID string, index, total int, transferID string) error {
	src, err := os.Open(f.AbsolutePath)
	if err != nil {
		return fmt.Errorf("transfer: open %q: %w", f.AbsolutePath, err)
	}
	defer src.Close()

	c.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.Message{
		Kind:       protocol.KindFileHeader,
		FileHeader: &protocol.FileHeaderPayload{ID: fileID, Path: f.RelativePath, Size: f.Size},
	}); err != nil {
		return fmt.Errorf("transfer: send file_header for %q: %w", f.RelativePath, err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(conn, hasher)

	c.applyDeadline(conn)
	if err := copyChunked(writer, src, f.Size); err != nil {
		return fmt.Errorf("transfer: stream %q: %w", f.RelativePath, err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	c.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.Message{
		Kind:         protocol.KindFileComplete,
		FileComplete: &protocol.FileCompletePayload{ID: fileID, Checksum: checksum},
	}); err != nil {
		return fmt.Errorf("transfer: send file_complete for %q: %w", f.RelativePath, err)
	}

	if c.OnProgress != nil {
		c.OnProgress(Progress{
			TransferID: transferID,
			FileID:     fileID,
			FilePath:   f.RelativePath,
			FileIndex:  index,
			TotalFiles: total,
			BytesSent:  f.Size,
			TotalBytes: f.Size,
		})
	}
	return nil
}

func (c *Client) applyDeadline(conn net.Conn) {
	if c.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	}
	if c.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	}
}

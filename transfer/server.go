package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"aircopy/pathsafety"
	"aircopy/protocol"
)

const socketBufferSize = 2 * 1024 * 1024 // SO_SNDBUF / SO_RCVBUF

// Server accepts inbound transfer connections and drives the receive-side
// state machine, one connection at a time, to completion.
type Server struct {
	// DownloadDir is where accepted files are written, relative paths
	// joined onto it after passing pathsafety.IsSafe.
	DownloadDir string

	// OnOffer decides whether to accept an incoming transfer_offer.
	OnOffer func(Offer) bool

	// OnProgress is called after each file completes.
	OnProgress func(Progress)

	// OnComplete, if set, is called exactly once for every connection that
	// delivers a transfer_offer, with the decided offer, whether it was
	// accepted, and the terminal error (nil on success). A connection that
	// fails before an offer is read does not call it.
	OnComplete func(offer Offer, accepted bool, err error)

	// ReadTimeout and WriteTimeout, if non-zero, are applied to every
	// socket operation on an accepted connection.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	listener net.Listener
}

// Listen binds a TCP listener on addr (e.g. "0.0.0.0:53318") with
// SO_REUSEADDR and returns a Server ready to Run.
func Listen(addr string) (*Server, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: listen on %s: %w", addr, err)
	}
	return &Server{listener: listener}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops the accept loop.
func (s *Server) Close() error { return s.listener.Close() }

// Run accepts connections serially until ctx is canceled or the listener
// is closed. A per-connection error is logged and the loop continues;
// only a listener-level failure ends Run.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transfer: accept: %w", err)
			}
		}

		tuneConn(conn)
		if err := s.handleConn(conn); err != nil {
			logrus.WithError(err).Warn("transfer: connection aborted")
		}
		conn.Close()
	}
}

// handleConn drives one connection through AwaitOffer -> ... -> Done. If
// OnComplete is set, it is called exactly once with the outcome of the
// offer, whether accepted, rejected, or aborted by a protocol error.
func (s *Server) handleConn(conn net.Conn) (err error) {
	s.applyDeadline(conn)

	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("await offer: %w", err)
	}
	if msg.Kind != protocol.KindTransferOffer {
		return fmt.Errorf("await offer: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}
	offerMsg := msg.TransferOffer

	offer := Offer{
		TransferID: offerMsg.TransferID,
		DeviceID:   offerMsg.DeviceID,
		Alias:      offerMsg.Alias,
		TotalSize:  offerMsg.TotalSize,
		TotalFiles: int(offerMsg.TotalFiles),
	}
	for _, f := range offerMsg.Files {
		offer.Files = append(offer.Files, FileEntry{RelativePath: f.Path, Size: f.Size, Modified: f.Modified})
	}

	accept := s.OnOffer != nil && s.OnOffer(offer)

	if s.OnComplete != nil {
		defer func() { s.OnComplete(offer, accept, err) }()
	}

	s.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.Message{
		Kind:             protocol.KindTransferResponse,
		TransferResponse: &protocol.TransferResponsePayload{TransferID: offer.TransferID, Accepted: accept},
	}); err != nil {
		return fmt.Errorf("write transfer_response: %w", err)
	}
	if !accept {
		return nil
	}

	for i := range offerMsg.Files {
		if err := s.receiveFile(conn, i, len(offerMsg.Files), offer.TransferID); err != nil {
			return err
		}
	}

	s.applyDeadline(conn)
	msg, err = protocol.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("await transfer_complete: %w", err)
	}
	if msg.Kind != protocol.KindTransferComplete {
		return fmt.Errorf("await transfer_complete: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}

	s.applyDeadline(conn)
	if err := protocol.WriteMessage(conn, protocol.NewAck()); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	return nil
}

// receiveFile handles one RecvFile -> Streaming -> AwaitComplete cycle: it
// reads the file_header for this file off the wire, then its raw bytes,
// then its file_complete.
func (s *Server) receiveFile(conn net.Conn, index, total int, transferID string) error {
	s.applyDeadline(conn)
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("await file_header: %w", err)
	}
	if msg.Kind != protocol.KindFileHeader {
		return fmt.Errorf("await file_header: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}
	file := *msg.FileHeader

	if !pathsafety.IsSafe(file.Path) {
		return fmt.Errorf("file %q: %w", file.Path, ErrPathIsInvalid)
	}

	outPath := filepath.Join(s.DownloadDir, filepath.FromSlash(file.Path))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create parent dirs for %q: %w", outPath, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", outPath, err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(out, hasher)

	s.applyDeadline(conn)
	if err := copyChunked(writer, conn, file.Size); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("stream file %q: %w", file.Path, err)
	}
	out.Close()

	s.applyDeadline(conn)
	msg, err = protocol.ReadMessage(conn)
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("await file_complete: %w", err)
	}
	if msg.Kind != protocol.KindFileComplete {
		os.Remove(outPath)
		return fmt.Errorf("await file_complete: got %q: %w", msg.Kind, ErrUnexpectedMessage)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if sum != msg.FileComplete.Checksum {
		os.Remove(outPath)
		return fmt.Errorf("file %q: got %s want %s: %w", file.Path, sum, msg.FileComplete.Checksum, ErrChecksumMismatch)
	}

	if s.OnProgress != nil {
		s.OnProgress(Progress{
			TransferID: transferID,
			FileID:     file.ID,
			FilePath:   file.Path,
			FileIndex:  index,
			TotalFiles: total,
			BytesSent:  file.Size,
			TotalBytes: file.Size,
		})
	}
	return nil
}

func (s *Server) applyDeadline(conn net.Conn) {
	if s.ReadTimeout > 0 || s.WriteTimeout > 0 {
		if s.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		if s.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
	}
}

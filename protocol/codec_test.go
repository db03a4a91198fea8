package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestRoundTripVariants(t *testing.T) {
	cases := []Message{
		{Kind: KindAnnounce, Announce: &AnnouncePayload{Alias: "desk", DeviceID: "d1", Version: 1, Port: 53317}},
		{Kind: KindTransferOffer, TransferOffer: &TransferOfferPayload{
			TransferID: "t1",
			DeviceID:   "d1",
			Alias:      "desk",
			Files:      []FileInfo{{ID: "f1", Path: "a/b.txt", Size: 12, Modified: 100}},
			TotalSize:  12,
			TotalFiles: 1,
		}},
		{Kind: KindTransferResponse, TransferResponse: &TransferResponsePayload{TransferID: "t1", Accepted: true}},
		{Kind: KindFileHeader, FileHeader: &FileHeaderPayload{ID: "f1", Path: "a/b.txt", Size: 12}},
		{Kind: KindFileComplete, FileComplete: &FileCompletePayload{ID: "f1", Checksum: "deadbeef"}},
		NewTransferComplete(),
		NewAck(),
	}

	for _, msg := range cases {
		t.Run(string(msg.Kind), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteMessage(&buf, msg); err != nil {
				t.Fatalf("WriteMessage: %v", err)
			}

			got, err := ReadMessage(&buf)
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if got.Kind != msg.Kind {
				t.Fatalf("Kind = %q, want %q", got.Kind, msg.Kind)
			}
		})
	}
}

func TestReadMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxMessageSize+1)
	buf.Write(prefix[:])
	// Deliberately no body: ReadMessage must reject on the prefix alone.

	_, err := ReadMessage(&buf)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("ReadMessage() error = %v, want ErrMessageTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("ReadMessage() consumed body bytes it should never have read")
	}
}

func TestUnmarshalRejectsMultiKeyEnvelope(t *testing.T) {
	var msg Message
	err := msg.UnmarshalJSON([]byte(`{"ack":{},"transfer_complete":{}}`))
	if err == nil {
		t.Fatal("UnmarshalJSON() accepted a multi-key envelope")
	}
}

func TestUnmarshalRejectsUnknownVariant(t *testing.T) {
	var msg Message
	err := msg.UnmarshalJSON([]byte(`{"bogus":{}}`))
	if err == nil {
		t.Fatal("UnmarshalJSON() accepted an unknown variant")
	}
}

// Package protocol implements the length-prefixed JSON message framing
// spoken between peers, and the tagged-union message types carried over it.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind names one variant of the tagged-union Message.
type Kind string

// The seven message variants the wire protocol carries.
const (
	KindAnnounce         Kind = "announce"
	KindTransferOffer    Kind = "transfer_offer"
	KindTransferResponse Kind = "transfer_response"
	KindFileHeader       Kind = "file_header"
	KindFileComplete     Kind = "file_complete"
	KindTransferComplete Kind = "transfer_complete"
	KindAck              Kind = "ack"
)

// AnnouncePayload is the raw-JSON UDP discovery datagram. It is also
// usable, unframed, as a Message variant, though in practice the discovery
// channel never goes through the length-prefixed codec.
type AnnouncePayload struct {
	Alias    string `json:"alias"`
	DeviceID string `json:"device_id"`
	Version  int    `json:"version"`
	Port     uint16 `json:"port"`
}

// FileInfo describes one file within a transfer offer, as seen on the wire.
type FileInfo struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Size     uint64 `json:"size"`
	Modified int64  `json:"modified"`
}

// TransferOfferPayload opens a transfer: the sender's identity plus the
// full file manifest.
type TransferOfferPayload struct {
	TransferID string     `json:"transfer_id"`
	DeviceID   string     `json:"device_id"`
	Alias      string     `json:"alias"`
	Files      []FileInfo `json:"files"`
	TotalSize  uint64     `json:"total_size"`
	TotalFiles uint32     `json:"total_files"`
}

// TransferResponsePayload accepts or rejects a TransferOffer.
type TransferResponsePayload struct {
	TransferID string `json:"transfer_id"`
	Accepted   bool   `json:"accepted"`
}

// FileHeaderPayload precedes exactly Size raw, unframed bytes of file
// content on the wire.
type FileHeaderPayload struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// FileCompletePayload closes out one file with its sender-computed checksum.
type FileCompletePayload struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
}

// Message is a tagged union over the seven wire variants. Exactly one of
// the payload fields is non-nil, matching Kind; TransferComplete and Ack
// carry no data.
type Message struct {
	Kind Kind

	Announce         *AnnouncePayload
	TransferOffer    *TransferOfferPayload
	TransferResponse *TransferResponsePayload
	FileHeader       *FileHeaderPayload
	FileComplete     *FileCompletePayload
}

// NewTransferComplete builds the no-payload transfer_complete variant.
func NewTransferComplete() Message { return Message{Kind: KindTransferComplete} }

// NewAck builds the no-payload ack variant.
func NewAck() Message { return Message{Kind: KindAck} }

// MarshalJSON encodes the message as a single-key object whose key names
// the variant, e.g. {"transfer_offer": {...}}.
func (m Message) MarshalJSON() ([]byte, error) {
	var payload any

	switch m.Kind {
	case KindAnnounce:
		payload = m.Announce
	case KindTransferOffer:
		payload = m.TransferOffer
	case KindTransferResponse:
		payload = m.TransferResponse
	case KindFileHeader:
		payload = m.FileHeader
	case KindFileComplete:
		payload = m.FileComplete
	case KindTransferComplete, KindAck:
		payload = struct{}{}
	default:
		return nil, fmt.Errorf("protocol: marshal message: unknown variant %q", m.Kind)
	}

	return json.Marshal(map[string]any{string(m.Kind): payload})
}

// UnmarshalJSON decodes a single-key-object message. An object with zero or
// more than one key, or an unrecognized key, is a fatal framing error.
func (m *Message) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("protocol: decode message envelope: %w", err)
	}
	if len(envelope) != 1 {
		return fmt.Errorf("protocol: message envelope has %d keys, want exactly 1", len(envelope))
	}

	for key, raw := range envelope {
		kind := Kind(key)
		switch kind {
		case KindAnnounce:
			var payload AnnouncePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("protocol: decode announce: %w", err)
			}
			*m = Message{Kind: kind, Announce: &payload}
		case KindTransferOffer:
			var payload TransferOfferPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("protocol: decode transfer_offer: %w", err)
			}
			*m = Message{Kind: kind, TransferOffer: &payload}
		case KindTransferResponse:
			var payload TransferResponsePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("protocol: decode transfer_response: %w", err)
			}
			*m = Message{Kind: kind, TransferResponse: &payload}
		case KindFileHeader:
			var payload FileHeaderPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("protocol: decode file_header: %w", err)
			}
			*m = Message{Kind: kind, FileHeader: &payload}
		case KindFileComplete:
			var payload FileCompletePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("protocol: decode file_complete: %w", err)
			}
			*m = Message{Kind: kind, FileComplete: &payload}
		case KindTransferComplete, KindAck:
			*m = Message{Kind: kind}
		default:
			return fmt.Errorf("protocol: unknown message variant %q", key)
		}
		return nil
	}

	return nil
}

package transfer

import "errors"

// ErrPathIsInvalid is fatal for a transfer: the receiver rejected a
// file_header.path that failed pathsafety.IsSafe.
var ErrPathIsInvalid = errors.New("transfer: path is invalid")

// ErrChecksumMismatch is fatal for a transfer: the receiver's computed
// SHA-256 over a file's bytes did not match the sender's file_complete
// checksum. The partially-written output file is deleted before this
// error is returned.
var ErrChecksumMismatch = errors.New("transfer: checksum mismatch")

// ErrTransferRejected is returned to the sender when the receiver's
// on_offer callback declines the transfer.
var ErrTransferRejected = errors.New("transfer: rejected by peer")

// ErrUnexpectedMessage is fatal for a transfer: a message arrived out of
// the order the state machine requires.
var ErrUnexpectedMessage = errors.New("transfer: unexpected message")

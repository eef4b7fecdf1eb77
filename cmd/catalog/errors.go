package catalog

import (
	"errors"
	"fmt"

	"vidshare/cmd/identity"
)

// Client-facing messages.
const (
	MsgChannelNameRequired  = "Channel name is required"
	MsgChannelNameLength    = "Channel name must be between 3 and 100 characters"
	MsgChannelDescTooLong   = "Channel description must be at most 1000 characters"
	MsgChannelNameTaken     = "Channel name already exists"
	MsgChannelAlreadyOwned  = "User already has a channel"
	MsgVideoTitleRequired   = "Video title is required"
	MsgVideoTitleTooLong    = "Video title must be at most 255 characters"
	MsgVideoDescTooLong     = "Video description must be at most 2000 characters"
	MsgVideoFilePathMissing = "Video file path is required"
	MsgChannelNotOwned      = "Channel does not belong to the uploader"
	MsgStatusInvalid        = "Unknown video status"
	MsgSearchKeyword        = "Search keyword is required"
)

func invalid(op, msg string) error {
	return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: msg}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se identity.StoreError
	if errors.As(err, &se) {
		return err
	}
	return identity.StoreError{Op: op, Err: err}
}

func transitionConflict(op string, from, to VideoStatus) error {
	return identity.OpError{
		Op:   op,
		Kind: identity.ErrConflict,
		Msg:  fmt.Sprintf("Video status %s cannot change to %s", from, to),
	}
}

func statusStrings(in []VideoStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

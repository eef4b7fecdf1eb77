package authapi

import (
	"errors"
	"net/http"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
)

const (
	MsgInvalidBody     = "Invalid request body"
	MsgInternal        = "Internal server error"
	MsgUsernameTaken   = "Username already exists"
	MsgEmailTaken      = "Email already exists"
	MsgUserNotFound    = "User not found"
	MsgChannelNotFound = "Channel not found"
	MsgVideoNotFound   = "Video not found"
)

// writeServiceError maps a service error to a status and a client-safe body.
// Store failures and anything unclassified are logged and reported as 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case identity.IsInvalidInput(err):
		msg, ok := identity.PublicMessage(err)
		if !ok {
			msg = MsgInvalidBody
		}
		writeError(w, http.StatusBadRequest, msg)

	case identity.IsConflict(err):
		writeError(w, http.StatusBadRequest, conflictMessage(err))

	case identity.IsInvalidCredentials(err):
		writeError(w, http.StatusBadRequest, identity.MsgInvalidCredentials)

	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, notFoundMessage(err))

	default:
		h.log.ErrorContext(r.Context(), "http.handler.fail",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, MsgInternal)
	}
}

func conflictMessage(err error) string {
	if field, ok := identity.ConflictField(err); ok {
		switch field {
		case "username":
			return MsgUsernameTaken
		case "email":
			return MsgEmailTaken
		case "name":
			return catalog.MsgChannelNameTaken
		case "owner":
			return catalog.MsgChannelAlreadyOwned
		}
	}
	if msg, ok := identity.PublicMessage(err); ok {
		return msg
	}
	return "Resource already exists"
}

func notFoundMessage(err error) string {
	var nf identity.NotFoundError
	if errors.As(err, &nf) {
		switch nf.Resource {
		case "channel":
			return MsgChannelNotFound
		case "video":
			return MsgVideoNotFound
		}
	}
	return MsgUserNotFound
}

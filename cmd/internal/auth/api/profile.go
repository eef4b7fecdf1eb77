package authapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
)

// ownProfileResponse is the self view: everything but the password hash.
type ownProfileResponse struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"displayName"`
	ProfileImageURL *string   `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

type updatedUser struct {
	ownProfileResponse
	UpdatedAt time.Time `json:"updatedAt"`
}

type updateProfileResponse struct {
	Message string      `json:"message"`
	User    updatedUser `json:"user"`
}

type userVideosResponse struct {
	Videos []catalog.Video `json:"videos"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func toOwnProfile(u identity.User) ownProfileResponse {
	return ownProfileResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
	}
}

func (h *Handler) handleGetOwnProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetOwnProfile(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnProfile(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	patch, msg := profilePatchFrom(raw)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), principal(r), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateProfileResponse{
		Message: "Profile updated successfully",
		User:    updatedUser{ownProfileResponse: toOwnProfile(u), UpdatedAt: u.UpdatedAt},
	})
}

// profilePatchFrom picks the updatable keys out of a decoded body. Any other key,
// including username, email and password, is ignored.
func profilePatchFrom(raw map[string]json.RawMessage) (identity.ProfilePatch, string) {
	var patch identity.ProfilePatch
	for key, dst := range map[string]*identity.Patch{
		"displayName":     &patch.DisplayName,
		"profileImageUrl": &patch.ProfileImageURL,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return identity.ProfilePatch{}, key + " must be a string or null"
		}
		if s == nil {
			*dst = identity.Clear()
		} else {
			*dst = identity.Set(*s)
		}
	}
	return patch, ""
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.users.GetPublicProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUserVideos(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidPaging)
		return
	}

	id, err := h.users.ResolveUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	videos, err := h.catalog.ListByUploader(r.Context(), id, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	total, err := h.catalog.CountByUploader(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userVideosResponse{Videos: videos, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// pageFrom reads limit/offset query parameters. Absent values take the defaults.
func pageFrom(r *http.Request) (catalog.Page, bool) {
	q := r.URL.Query()
	var p catalog.Page
	for key, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return catalog.Page{}, false
		}
		*dst = n
	}
	return p.Normalize(), true
}

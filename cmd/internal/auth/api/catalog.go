package authapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vidshare/cmd/catalog"
)

const (
	MsgInvalidPaging  = "Invalid paging parameters"
	MsgInvalidVideoID = "Invalid video id"
	MsgDeletedListing = "Deleted videos are not listed"
)

type createChannelRequest struct {
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	BannerImageURL *string `json:"bannerImageUrl"`
}

type uploadRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	FilePath    string  `json:"filePath"`
	FileSize    *int64  `json:"fileSize"`
	ChannelID   *int64  `json:"channelId"`
}

type deleteChannelResponse struct {
	Message       string `json:"message"`
	VideosDeleted int64  `json:"videosDeleted"`
}

type videoListResponse struct {
	Videos []catalog.Video `json:"videos"`
}

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	c, err := h.catalog.CreateChannel(r.Context(), principal(r), catalog.CreateChannelInput{
		Name:           req.Name,
		Description:    req.Description,
		BannerImageURL: req.BannerImageURL,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.GetChannelByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.DeleteChannel(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteChannelResponse{Message: "Channel deleted successfully", VideosDeleted: n})
}

func (h *Handler) handleRegisterUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	v, err := h.catalog.RegisterUpload(r.Context(), principal(r), catalog.UploadInput{
		Title:       req.Title,
		Description: req.Description,
		FilePath:    req.FilePath,
		FileSize:    req.FileSize,
		ChannelID:   req.ChannelID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidVideoID)
		return
	}
	v, err := h.catalog.GetVideo(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidVideoID)
		return
	}
	if err := h.catalog.DeleteVideo(r.Context(), principal(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Video deleted successfully"})
}

func (h *Handler) handleListVideos(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidPaging)
		return
	}

	status := catalog.StatusReady
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := catalog.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, catalog.MsgStatusInvalid)
			return
		}
		status = s
	}
	if status == catalog.StatusDeleted {
		writeError(w, http.StatusBadRequest, MsgDeletedListing)
		return
	}

	videos, err := h.catalog.ListByStatus(r.Context(), status, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, videoListResponse{Videos: videos})
}

func (h *Handler) handleSearchVideos(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidPaging)
		return
	}
	videos, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, videoListResponse{Videos: videos})
}

func (h *Handler) handlePopularVideos(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidPaging)
		return
	}
	limit := 0
	if r.URL.Query().Get("limit") != "" {
		limit = page.Limit
	}
	videos, err := h.catalog.MostViewed(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, videoListResponse{Videos: videos})
}

func videoID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

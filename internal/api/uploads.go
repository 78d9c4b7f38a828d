package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/storage"
)

// multipartOverhead is the room left for multipart headers on top of the
// largest accepted file.
const multipartOverhead = 64 << 10

type UploadResponse struct {
	Url  string `json:"url"`
	Name string `json:"name"`
}

func storageError(err error) *ApiError {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return NewRequestEntityTooLargeError()
	case errors.Is(err, storage.ErrUnsupportedType):
		return NewUnsupportedMediaTypeError()
	case errors.Is(err, storage.ErrEmpty):
		return NewBadRequestError()
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError()
	default:
		return NewInternalServerError(err)
	}
}

func (s *TeamChatApp) upload(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if s.blobs == nil {
		s.writeError(w, NewServiceUnavailableError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.blobs.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, NewRequestEntityTooLargeError())
			return
		}
		s.writeError(w, NewBadRequestError())
		return
	}
	defer file.Close()

	blob, err := s.blobs.Put(userId, header.Filename, file)
	if err != nil {
		s.log.Printf("upload from %s: %v", userId, err)
		s.writeError(w, storageError(err))
		return
	}

	if s.stats != nil {
		s.stats.Incr(stats.NumUploads)
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{
		Url:  "/api/files/" + blob.Name,
		Name: blob.Name,
	})
}

func (s *TeamChatApp) serveFile(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		s.writeError(w, NewServiceUnavailableError())
		return
	}

	blob, data, err := s.blobs.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, storageError(err))
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

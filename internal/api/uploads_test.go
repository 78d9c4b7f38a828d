package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/storage"
	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newUploadApp(t *testing.T, maxBytes int64, su *stats.MockStatsUpdater) *TeamChatApp {
	blobs, err := storage.Open(filepath.Join(t.TempDir(), "blobs"), maxBytes)
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	su.On("RegisterMetric", stats.NumUploads).Once()
	return NewTeamChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, blobs, su, &config.Config{})
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, filename)
	assert.NoError(t, err)
	_, err = fw.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

func Test_upload(t *testing.T) {
	tcases := []struct {
		name        string
		field       string
		data        []byte
		expectedErr *ApiError
	}{
		{
			name:  "stores an image",
			field: "file",
			data:  pngHeader,
		},
		{
			name:        "rejects non images",
			field:       "file",
			data:        []byte("just some text"),
			expectedErr: NewUnsupportedMediaTypeError(),
		},
		{
			name:        "rejects empty files",
			field:       "file",
			data:        []byte{},
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "rejects large files",
			field:       "file",
			data:        append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...),
			expectedErr: NewRequestEntityTooLargeError(),
		},
		{
			name:        "missing file field",
			field:       "image",
			data:        pngHeader,
			expectedErr: NewBadRequestError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			su := &stats.MockStatsUpdater{}
			defer su.AssertExpectations(t)
			if tc.expectedErr == nil {
				su.On("Incr", stats.NumUploads).Once()
			}

			app := newUploadApp(t, 1024, su)
			body, contentType := multipartBody(t, tc.field, "cat.png", tc.data)
			req := withUser(httptest.NewRequest(http.MethodPost, "/api/uploads", body), alice.Id)
			req.Header.Set("Content-Type", contentType)

			rr := httptest.NewRecorder()
			app.upload(rr, req)

			if tc.expectedErr != nil {
				assertApiError(t, rr, tc.expectedErr)
				return
			}

			var res UploadResponse
			assert.Equal(t, http.StatusCreated, rr.Code)
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.True(t, strings.HasPrefix(res.Url, "/api/files/"), "unexpected url %q", res.Url)

			files := httptest.NewRecorder()
			fileReq := withUser(httptest.NewRequest(http.MethodGet, res.Url, nil), alice.Id)
			fileReq.SetPathValue("name", res.Name)
			app.serveFile(files, fileReq)

			assert.Equal(t, http.StatusOK, files.Code)
			assert.Equal(t, "image/png", files.Header().Get("Content-Type"))
			assert.Equal(t, pngHeader, files.Body.Bytes())
		})
	}
}

func Test_serveFile_NotFound(t *testing.T) {
	app := newUploadApp(t, 1024, &stats.MockStatsUpdater{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/files/missing.png", nil), alice.Id)
	req.SetPathValue("name", "missing.png")
	rr := httptest.NewRecorder()
	app.serveFile(rr, req)

	assertApiError(t, rr, NewNotFoundError())
}

func Test_upload_NoBlobStore(t *testing.T) {
	app := newTestApp(t, nil, nil)

	body, contentType := multipartBody(t, "file", "cat.png", pngHeader)
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/uploads", body), alice.Id)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	app.upload(rr, req)

	assertApiError(t, rr, NewServiceUnavailableError())
}

func Test_storageError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, storageError(storage.ErrNotFound).StatusCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, storageError(fmt.Errorf("put: %w", storage.ErrTooLarge)).StatusCode)
	assert.Equal(t, http.StatusInternalServerError, storageError(assert.AnError).StatusCode)
}

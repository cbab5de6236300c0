package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/api"
)

// Do sends a request with an optional JSON body and annotation token
func Do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(api.TokenHeader, token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DecodeJSON decodes the response body into v and returns v
func DecodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// UploadImage posts a multipart image for productID and returns the record
func UploadImage(t *testing.T, serverURL string, productID int64, filename string, data []byte) labelsync.ImageRecord {
	t.Helper()

	resp := PostImage(t, serverURL, productID, filename, data)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return DecodeJSON[labelsync.ImageRecord](t, resp)
}

// PostImage posts a multipart image without asserting the outcome
func PostImage(t *testing.T, serverURL string, productID int64, filename string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("product_id", strconv.FormatInt(productID, 10)))
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(serverURL+"/api/images", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_IsSuccess(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"given 200, then returns true", http.StatusOK, true},
		{"given 201, then returns true", http.StatusCreated, true},
		{"given 204, then returns true", http.StatusNoContent, true},
		{"given 299, then returns true", 299, true},
		{"given 300, then returns false", 300, false},
		{"given 400, then returns false", http.StatusBadRequest, false},
		{"given 500, then returns false", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{
				Response: &http.Response{StatusCode: tt.statusCode},
			}
			assert.Equal(t, tt.want, resp.IsSuccess())
		})
	}
}

func TestResponse_IsError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"given 200, then returns false", http.StatusOK, false},
		{"given 300, then returns false", 300, false},
		{"given 399, then returns false", 399, false},
		{"given 400, then returns true", http.StatusBadRequest, true},
		{"given 404, then returns true", http.StatusNotFound, true},
		{"given 500, then returns true", http.StatusInternalServerError, true},
		{"given 503, then returns true", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{
				Response: &http.Response{StatusCode: tt.statusCode},
			}
			assert.Equal(t, tt.want, resp.IsError())
		})
	}
}

func TestResponse_WithoutHTTPResponse(t *testing.T) {
	resp := &Response{}

	assert.False(t, resp.IsSuccess())
	assert.False(t, resp.IsError())
	assert.Empty(t, resp.String())
	assert.Nil(t, resp.Metrics())
}

func TestNewResponse(t *testing.T) {
	meta := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
	cfg := With[Decoder](Configuration{}, DecoderKey, JSONDecoder{})

	resp := newResponse(meta, cfg, 2)

	assert.Equal(t, 3, resp.Attempts())
	assert.Equal(t, http.NoBody, resp.Body)
	assert.Equal(t, JSONDecoder{}, resp.decoder)
}

func TestResponse_Body(t *testing.T) {
	resp := &Response{
		Response: &http.Response{StatusCode: http.StatusOK},
		body:     []byte("test body content"),
		curl:     "curl -X GET 'https://api.example.com/users'",
		filePath: "/tmp/download",
	}

	assert.Equal(t, []byte("test body content"), resp.Bytes())
	assert.Equal(t, "test body content", resp.String())
	assert.Equal(t, "curl -X GET 'https://api.example.com/users'", resp.CurlCommand())
	assert.Equal(t, "/tmp/download", resp.FilePath())
}

func TestResponse_Decode(t *testing.T) {
	type User struct {
		ID   int    `json:"id" xml:"id"`
		Name string `json:"name" xml:"name"`
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		decoder     Decoder
		wantName    string
		wantErr     assert.ErrorAssertionFunc
	}{
		{
			name:        "given JSON content-type, then decodes as JSON",
			body:        `{"id":1,"name":"John"}`,
			contentType: "application/json",
			wantName:    "John",
			wantErr:     assert.NoError,
		},
		{
			name:        "given JSON with charset, then decodes as JSON",
			body:        `{"id":1,"name":"Jane"}`,
			contentType: "application/json; charset=utf-8",
			wantName:    "Jane",
			wantErr:     assert.NoError,
		},
		{
			name:     "given no content-type, then defaults to JSON",
			body:     `{"id":1,"name":"Default"}`,
			wantName: "Default",
			wantErr:  assert.NoError,
		},
		{
			name:        "given XML content-type, then decodes as XML",
			body:        `<User><id>1</id><name>Xml</name></User>`,
			contentType: "application/xml",
			wantName:    "Xml",
			wantErr:     assert.NoError,
		},
		{
			name:        "given JSON decoder and XML body, then fails with decoding error",
			body:        `<User><name>Xml</name></User>`,
			contentType: "application/xml",
			decoder:     JSONDecoder{},
			wantErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.Equal(t, KindDecoding, KindOf(err)) && assert.ErrorIs(t, err, ErrDecoding)
			},
		},
		{
			name:    "given malformed JSON, then fails with decoding error",
			body:    `{"id":`,
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{
				Response: &http.Response{StatusCode: http.StatusOK, Header: http.Header{}},
				body:     []byte(tt.body),
				decoder:  tt.decoder,
			}
			resp.Header.Set("Content-Type", tt.contentType)

			var user User
			err := resp.Decode(&user)

			tt.wantErr(t, err)
			if err == nil {
				assert.Equal(t, tt.wantName, user.Name)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	type User struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		status   int
		body     string
		wantUser User
		wantKind ErrorKind
	}{
		{
			name:     "given successful JSON response, then decodes it",
			status:   http.StatusOK,
			body:     `{"id":7,"name":"John"}`,
			wantUser: User{ID: 7, Name: "John"},
		},
		{
			name:     "given invalid body, then returns decoding error",
			status:   http.StatusOK,
			body:     `not json`,
			wantKind: KindDecoding,
		},
		{
			name:     "given unacceptable status, then returns the task error",
			status:   http.StatusNotFound,
			body:     `{}`,
			wantKind: KindUnacceptableStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			client := New(WithBaseURL(server.URL))
			task := client.DataTask(NewEndpoint("GetUser").Path("/users/7"))

			user, err := DecodeResponse[User](context.Background(), task)
			if tt.wantKind != KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

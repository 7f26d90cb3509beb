package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FileUpload is one file part of a multipart request.
type FileUpload struct {
	// FieldName is the form field of the part.
	FieldName string

	// FileName is the file name sent with the part.
	FileName string

	// Path is read on every resolution when set.
	Path string

	// content holds the bytes of reader based uploads, read once.
	content *onceBuffer
}

func (f FileUpload) open() (io.ReadCloser, error) {
	if f.Path != "" {
		return os.Open(f.Path)
	}
	data, err := f.content.bytes()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// File adds a file part read from path. The file is opened on every
// resolution, so a retry resends its current content.
//
//	ep := httpclient.NewEndpoint("UploadDoc").
//	    Method(http.MethodPost).
//	    Path("/upload").
//	    File("document", "/path/to/report.pdf").
//	    FormField("title", "Q4 Report")
func (e *Endpoint) File(fieldName, path string) *Endpoint {
	upload := FileUpload{FieldName: fieldName, FileName: filepath.Base(path), Path: path}
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.files = append(b.files, upload)
		return nil
	})
}

// FileReader adds a file part read from r. r is consumed on the first
// resolution and its bytes are resent on retries.
func (e *Endpoint) FileReader(fieldName, fileName string, r io.Reader) *Endpoint {
	upload := FileUpload{FieldName: fieldName, FileName: fileName, content: &onceBuffer{r: r}}
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.files = append(b.files, upload)
		return nil
	})
}

// FormField adds a plain field to a multipart request. Fields are written
// in the order they were added.
func (e *Endpoint) FormField(key, value string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.fields = append(b.fields, [2]string{key, value})
		return nil
	})
}

// multipart encodes the fields and files of b.
func (b *requestBuild) multipart() ([]byte, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, f := range b.fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, file := range b.files {
		if err := writeFilePart(w, file); err != nil {
			return nil, "", fmt.Errorf("multipart %s: %w", file.FieldName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, file FileUpload) error {
	r, err := file.open()
	if err != nil {
		return err
	}
	defer r.Close()

	part, err := w.CreateFormFile(file.FieldName, file.FileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

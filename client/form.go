package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

type formFile struct {
	field    string
	filename string
	content  io.Reader
}

// Form is a multipart upload body. It is encoded once, so the same bytes can be replayed after
// a token refresh.
type Form struct {
	fields [][2]string
	files  []formFile
}

func NewForm() *Form {
	return &Form{}
}

// AddField appends a plain form value.
func (f *Form) AddField(name, value string) *Form {
	f.fields = append(f.fields, [2]string{name, value})
	return f
}

// AddFile appends a file part. r is read once, when the form is encoded.
func (f *Form) AddFile(field, filename string, r io.Reader) *Form {
	f.files = append(f.files, formFile{field: field, filename: filename, content: r})
	return f
}

func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, kv := range f.fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", kv[0], err)
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %s: %w", file.filename, err)
		}
		if _, err := io.Copy(part, file.content); err != nil {
			return nil, "", fmt.Errorf("failed to copy form file %s: %w", file.filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

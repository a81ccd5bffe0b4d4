package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-market-client/products"
	"github.com/pkg/errors"
)

// formBuilder accumulates a multipart/form-data body.
type formBuilder struct {
	buf *bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *formBuilder {
	buf := &bytes.Buffer{}
	return &formBuilder{buf: buf, w: multipart.NewWriter(buf)}
}

func (f *formBuilder) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *formBuilder) jsonField(name string, v any) {
	if f.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		f.err = errors.Wrapf(err, "marshal %s", name)
		return
	}
	f.field(name, string(data))
}

func (f *formBuilder) file(name string, index int, up products.Upload) {
	if f.err != nil || up.Path == "" {
		return
	}
	src, err := os.Open(up.Path)
	if err != nil {
		f.err = errors.Wrapf(err, "open %s", up.Path)
		return
	}
	defer src.Close()

	contentType := up.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	fileName := up.FileName
	if fileName == "" {
		fileName = filepath.Base(up.Path)
		if fileName == "" || fileName == "." {
			fileName = fmt.Sprintf("image_%d.jpg", index)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, fileName))
	h.Set("Content-Type", contentType)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = io.Copy(part, src)
}

// request finishes the body and returns it as an API request.
func (f *formBuilder) request(method, path string, authed bool) (request, error) {
	if f.err != nil {
		return request{}, errors.Wrap(f.err, "build multipart body")
	}
	if err := f.w.Close(); err != nil {
		return request{}, errors.Wrap(err, "close multipart body")
	}
	return request{
		method:      method,
		path:        path,
		body:        f.buf,
		contentType: f.w.FormDataContentType(),
		authed:      authed,
	}, nil
}

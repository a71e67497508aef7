package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"

	"investdesk/internal/security"
)

// Upload is one file part of a multipart request.
type Upload struct {
	Field    string
	Filename string
	Data     []byte
}

// DoMultipart sends fields and files as multipart/form-data. Every file is
// checked against the upload limits before anything is sent.
func (c *Client) DoMultipart(ctx context.Context, req Request, fields map[string]string, files []Upload) (json.RawMessage, error) {
	for _, f := range files {
		if err := security.ValidateUpload(f.Filename, int64(len(f.Data))); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Stable field order keeps requests reproducible.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", name, err)
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, filepath.Base(f.Filename)))
		h.Set("Content-Type", imageContentType(f.Filename))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("writing part %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return c.send(ctx, req, &buf, w.FormDataContentType())
}

func imageContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// Package documents covers the document resource: the request operations
// (Client) and the screen-level cached list with its selection (Library).
package documents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the largest file the backend accepts.
const MaxUploadSize int64 = 1 << 30

// Accepted MIME types.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText = "text/plain"
)

var allowedMIME = map[string]bool{MIMEPDF: true, MIMEDOCX: true, MIMEText: true}

// Document is a backend-owned uploaded file.
type Document struct {
	ID          string       `json:"document_id"`
	Filename    string       `json:"filename"`
	FileSize    int64        `json:"file_size"`
	ChunksCount int          `json:"chunks_count"`
	UploadedAt  gateway.Time `json:"uploaded_at"`
}

// File describes an upload candidate. Size and MIME are checked before Open
// is ever called.
type File struct {
	Name string
	Size int64
	MIME string
	Open func() (io.ReadCloser, error)
}

// FileFromPath stats path and detects its MIME type from content.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return File{}, gateway.Invalid("file", fmt.Sprintf("%s is a directory", path))
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("detect type: %w", err)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		MIME: normalizeMIME(mt, filepath.Ext(path)),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// normalizeMIME maps a sniffed type onto the accepted set. Docx is a zip
// container and some writers produce files mimetype only sees as zip, so the
// extension decides in that case.
func normalizeMIME(mt *mimetype.MIME, ext string) string {
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is(MIMEDOCX):
			return MIMEDOCX
		case m.Is(MIMEPDF):
			return MIMEPDF
		case m.Is(MIMEText):
			// text subtypes (json, csv, html...) only count as plain text for .txt files
			if m == mt || strings.EqualFold(ext, ".txt") {
				return MIMEText
			}
		}
	}
	if mt.Is("application/zip") && strings.EqualFold(ext, ".docx") {
		return MIMEDOCX
	}
	return mt.String()
}

// Validate checks the local upload preconditions.
func Validate(f File) error {
	if f.Size > MaxUploadSize {
		return gateway.Invalid("file", "File size must be less than 1GB")
	}
	if f.Size < 0 {
		return gateway.Invalid("file", "File size is invalid")
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(f.MIME, ";", 2)[0]))
	if !allowedMIME[mt] {
		return gateway.Invalid("file", "Only PDF, DOCX, and TXT files are allowed")
	}
	return nil
}

// Gateway is the part of the HTTP gateway documents need.
type Gateway interface {
	Do(ctx context.Context, call gateway.Call, out any) error
	Upload(ctx context.Context, path string, part gateway.FilePart, fallback string, out any) error
}

// Client issues document requests. It keeps no state.
type Client struct {
	gw Gateway
}

func NewClient(gw Gateway) *Client { return &Client{gw: gw} }

// Upload validates f locally and sends it. The caller refreshes its list.
func (c *Client) Upload(ctx context.Context, f File) (*Document, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	var out struct {
		Document Document `json:"document"`
	}
	part := gateway.FilePart{Field: "file", Filename: f.Name, ContentType: strings.SplitN(f.MIME, ";", 2)[0], Open: f.Open}
	if err := c.gw.Upload(ctx, "/documents/upload", part, "Upload failed", &out); err != nil {
		return nil, err
	}
	return &out.Document, nil
}

// List returns every document of the user in backend order.
func (c *Client) List(ctx context.Context) ([]Document, error) {
	var out struct {
		Documents []Document `json:"documents"`
	}
	if err := c.gw.Do(ctx, gateway.Call{Method: http.MethodGet, Path: "/documents/list", Fallback: "Failed to load documents"}, &out); err != nil {
		return nil, err
	}
	if out.Documents == nil {
		out.Documents = []Document{}
	}
	return out.Documents, nil
}

// Get fetches one document.
func (c *Client) Get(ctx context.Context, id string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, gateway.Invalid("document_id", "Document id is required")
	}
	var out struct {
		Document Document `json:"document"`
	}
	call := gateway.Call{Method: http.MethodGet, Path: "/documents/" + url.PathEscape(id), Fallback: "Failed to load document"}
	if err := c.gw.Do(ctx, call, &out); err != nil {
		return nil, err
	}
	return &out.Document, nil
}

// Delete removes a document. Confirmation is the caller's job.
func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return gateway.Invalid("document_id", "Document id is required")
	}
	call := gateway.Call{Method: http.MethodDelete, Path: "/documents/" + url.PathEscape(id), Fallback: "Failed to delete document"}
	return c.gw.Do(ctx, call, nil)
}

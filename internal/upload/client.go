// Package upload is the client side of the content upload contract:
// POST {url} with a multipart "contentFile" field.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eduquest-progress/internal/domain"
)

const (
	// FieldName is the multipart field the endpoint reads.
	FieldName = "contentFile"
	// DefaultMaxSizeMB is the size limit when none is configured.
	DefaultMaxSizeMB = 50
)

// DefaultAcceptedTypes are the extensions accepted by the content library.
var DefaultAcceptedTypes = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx", ".mp4", ".mp3", ".jpg", ".png"}

type response struct {
	Success bool                 `json:"success"`
	File    *domain.UploadedFile `json:"file,omitempty"`
	Message string               `json:"message,omitempty"`
}

type Client struct {
	url      string
	http     *http.Client
	maxBytes int64
	accepted []string
}

// NewClient builds an upload client. accepted holds extensions (".pdf") or
// MIME types ("video/mp4"); empty accepts everything.
func NewClient(url string, maxSizeMB int, accepted []string, timeout time.Duration) *Client {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		url:      url,
		http:     &http.Client{Timeout: timeout},
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		accepted: accepted,
	}
}

// Check applies the size and type limits without sending anything.
func (c *Client) Check(name, contentType string, size int64) error {
	if size > c.maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", domain.ErrFileTooLarge, name, size, c.maxBytes)
	}
	if len(c.accepted) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	mediaType, _, _ := mime.ParseMediaType(contentType)
	for _, a := range c.accepted {
		a = strings.ToLower(a)
		if a == ext || (mediaType != "" && a == mediaType) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s)", domain.ErrFileType, name, contentType)
}

// UploadFile uploads a file from disk, deriving its content type from the extension.
func (c *Client) UploadFile(ctx context.Context, path string) (domain.UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.UploadedFile{}, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Upload(ctx, filepath.Base(path), contentType, info.Size(), f)
}

// Upload sends one file. The endpoint decides acceptance; success=false comes
// back as domain.ErrUploadRejected carrying the server message.
func (c *Client) Upload(ctx context.Context, name, contentType string, size int64, content io.Reader) (domain.UploadedFile, error) {
	if err := c.Check(name, contentType, size); err != nil {
		return domain.UploadedFile{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if _, err := io.Copy(part, io.LimitReader(content, c.maxBytes+1)); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return domain.UploadedFile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("%w: status %d", domain.ErrUploadRejected, resp.StatusCode)
	}
	if !out.Success || out.File == nil {
		log.Printf("[upload] %s rejected: %s", name, out.Message)
		return domain.UploadedFile{}, fmt.Errorf("%w: %s", domain.ErrUploadRejected, out.Message)
	}
	log.Printf("[upload] %s stored as %s", name, out.File.StoredName)
	return *out.File, nil
}

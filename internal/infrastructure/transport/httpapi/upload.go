package httpapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload posts r as the multipart field "file" and returns the stored URL.
// The body is streamed through a pipe so large files are never buffered.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.uploadPath), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("build upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var resp uploadResponse
	if err := c.send(req, c.uploadPath, &resp); err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	return resp.URL, nil
}

// internal/services/image_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/config"
)

// maxImageSize bounds downloads of processed images (200MB)
const maxImageSize = 200 * 1024 * 1024

const imageServiceName = "picsart"

// ImageProcessor is the external upscaling and resizing service.
type ImageProcessor interface {
	Upscale(ctx context.Context, imageURL string, factor float64) (string, error)
	Resize(ctx context.Context, imageURL string, width int) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// PicsartClient calls the Picsart image API. Every call is synchronous
// and answers with the URL of the produced image.
type PicsartClient struct {
	baseURL    string
	apiKey     string
	maxRetries  int
	maxDownload int64
	httpClient  *http.Client
	log         logrus.FieldLogger
}

type picsartResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func NewPicsartClient(cfg config.PicsartConfig, log logrus.FieldLogger) *PicsartClient {
	return &PicsartClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		maxRetries:  cfg.MaxRetries,
		maxDownload: maxImageSize,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		log: log.WithField("component", "image_processor"),
	}
}

// Upscale enlarges the image by factor using the ultra upscaler.
func (c *PicsartClient) Upscale(ctx context.Context, imageURL string, factor float64) (string, error) {
	fields := map[string]string{
		"image_url":      imageURL,
		"upscale_factor": strconv.FormatFloat(factor, 'f', 4, 64),
		"mode":           "sync",
		"format":         "JPG",
	}
	return c.post(ctx, "/upscale/ultra", fields)
}

// Resize scales the image to width, keeping the aspect ratio.
func (c *PicsartClient) Resize(ctx context.Context, imageURL string, width int) (string, error) {
	fields := map[string]string{
		"image_url": imageURL,
		"width":     strconv.Itoa(width),
		"format":    "JPG",
	}
	return c.post(ctx, "/edit", fields)
}

func (c *PicsartClient) Download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := retryCall(ctx, c.maxRetries, c.log, "GET result", true, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("picsart: failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &RemoteAPIError{Service: imageServiceName, Method: http.MethodGet, Path: url, Status: resp.StatusCode, Body: string(body)}
		}

		// One byte past the limit tells a full image from a truncated one
		data, err = io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
		if err != nil {
			return fmt.Errorf("%w: failed to read image: %w", ErrRemoteUnavailable, err)
		}
		if int64(len(data)) > c.maxDownload {
			data = nil
			return &RemoteAPIError{
				Service: imageServiceName,
				Method:  http.MethodGet,
				Path:    url,
				Status:  resp.StatusCode,
				Body:    fmt.Sprintf("image exceeds %d bytes", c.maxDownload),
			}
		}
		return nil
	})
	return data, err
}

func (c *PicsartClient) post(ctx context.Context, path string, fields map[string]string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", fmt.Errorf("picsart: failed to build form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("picsart: failed to build form: %w", err)
	}
	payload := body.Bytes()
	contentType := writer.FormDataContentType()

	var resultURL string
	err := retryCall(ctx, c.maxRetries, c.log, "POST "+path, false, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("picsart: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Picsart-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %w", ErrRemoteUnavailable, err)
		}

		var parsed picsartResponse
		_ = json.Unmarshal(respBody, &parsed)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := parsed.Detail
			if msg == "" {
				msg = parsed.Message
			}
			if msg == "" {
				msg = strings.TrimSpace(string(respBody))
			}
			return &RemoteAPIError{Service: imageServiceName, Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: msg}
		}
		if parsed.Data.URL == "" {
			return &RemoteAPIError{Service: imageServiceName, Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: "response carried no result url"}
		}

		resultURL = parsed.Data.URL
		return nil
	})
	return resultURL, err
}

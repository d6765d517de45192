package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var ErrMissingAPIKey = errors.New("gemini: api key is empty")

type ImageInput struct {
	DataBase64 string
	MimeType   string
}

type Request struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Prompt            string
	Images            []ImageInput
	JSON              bool
	Temperature       float64
}

type Response struct {
	Text string
}

// Generator performs a single generateContent round trip.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// StatusError is returned by the REST transport for non-2xx answers.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini API %s: %s", e.Status, e.Body)
}

// StatusCode extracts the HTTP status carried by either transport's error.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func validate(req Request) error {
	if strings.TrimSpace(req.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("gemini: model is empty")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("gemini: prompt is empty")
	}
	return nil
}

func cleanMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	return mimeType
}

// DetectImageMime resolves the MIME type of an uploaded image, falling back to
// content sniffing and finally to image/jpeg.
func DetectImageMime(declared string, data []byte) string {
	mimeType := cleanMime(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = cleanMime(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

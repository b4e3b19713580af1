package generation

import "errors"

var (
	// ErrNotConfigured means no provider credentials are set.
	ErrNotConfigured = errors.New("GEMINI_API_KEY not configured")
	// ErrEmptyResult means the model answered with no usable text.
	ErrEmptyResult = errors.New("Failed to generate optimized name")
	// ErrNoResponse means the model returned no candidate content at all.
	ErrNoResponse = errors.New("No response from Gemini")
)

const noImageMessage = "Image generation not available for this model configuration"

// UpstreamError wraps a failed provider call.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return "Gemini API error"
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NoImageError is returned when the image model answered without an image.
// Text carries whatever the model said instead.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	if e.Text == "" {
		return noImageMessage
	}
	return e.Text
}

// ImageFetchError reports that the source image could not be downloaded.
type ImageFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *ImageFetchError) Error() string {
	return "Failed to fetch original image"
}

func (e *ImageFetchError) Unwrap() error { return e.Err }

// Package generation calls Gemini to produce SEO product names and studio
// style cover images.
package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/microcosm-cc/bluemonday"
	"google.golang.org/genai"

	"leviosa/internal/config"
	"leviosa/internal/logging"
)

const (
	defaultNameModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultImageMIME  = "image/jpeg"
	resultImageMIME   = "image/png"
)

// ContentGenerator is the slice of the genai Models API the service needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tunes a Service.
type Options struct {
	NameModel      string
	ImageModel     string
	Timeout        time.Duration
	MaxImageBytes  int64
	MaxImageSidePx int
	HTTPClient     *http.Client
}

// CoverImage is a generated cover.
type CoverImage struct {
	Data     []byte
	MIMEType string
}

// Service produces names and covers. A Service without a generator reports
// ErrNotConfigured from every call.
type Service struct {
	models ContentGenerator
	opts   Options
	http   *http.Client
	policy *bluemonday.Policy
}

// New builds a Gemini-backed service from config. An empty API key yields
// an unconfigured service rather than an error.
func New(ctx context.Context, cfg config.GenerationConfig, timeout time.Duration) (*Service, error) {
	opts := Options{
		NameModel:      cfg.NameModel,
		ImageModel:     cfg.ImageModel,
		Timeout:        timeout,
		MaxImageBytes:  cfg.MaxImageBytes,
		MaxImageSidePx: cfg.MaxImageSidePx,
	}
	if cfg.APIKey == "" {
		logging.GenerationWarn("no Gemini API key; generation endpoints will refuse requests")
		return NewWithGenerator(nil, opts), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	logging.Generation("Gemini client ready (name=%s image=%s)", opts.NameModel, opts.ImageModel)
	return NewWithGenerator(client.Models, opts), nil
}

// NewWithGenerator wires a service around any ContentGenerator.
func NewWithGenerator(models ContentGenerator, opts Options) *Service {
	if opts.NameModel == "" {
		opts.NameModel = defaultNameModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaultImageModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 10 << 20
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Service{
		models: models,
		opts:   opts,
		http:   hc,
		policy: bluemonday.StrictPolicy(),
	}
}

// Configured reports whether provider credentials are present.
func (s *Service) Configured() bool {
	return s != nil && s.models != nil
}

// OptimizeName rewrites a product name for Naver shopping search.
func (s *Service) OptimizeName(ctx context.Context, name, category string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryGeneration, "OptimizeName")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(namePrompt(name, category), genai.RoleUser),
	}
	resp, err := s.models.GenerateContent(ctx, s.opts.NameModel, contents, nil)
	if err != nil {
		return "", upstream(ctx, err)
	}

	out := s.cleanName(resp.Text())
	if out == "" {
		logging.GenerationWarn("empty name for %q", name)
		return "", ErrEmptyResult
	}
	logging.GenerationDebug("name %q -> %q", name, out)
	return out, nil
}

// cleanName strips markup and wrapping quotes from model output.
func (s *Service) cleanName(text string) string {
	text = html.UnescapeString(s.policy.Sanitize(text))
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return strings.Trim(text, "\"'`“”")
}

// OptimizeCover renders a marketplace cover from the image at imageURL.
func (s *Service) OptimizeCover(ctx context.Context, imageURL, name string) (*CoverImage, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryGeneration, "OptimizeCover")
	defer timer.Stop()

	data, mimeType, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	data, mimeType = s.downscale(data, mimeType)

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(coverPrompt(name)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := s.models.GenerateContent(ctx, s.opts.ImageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, upstream(ctx, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoResponse
	}

	var text string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			mt := p.InlineData.MIMEType
			if mt == "" {
				mt = resultImageMIME
			}
			logging.Generation("cover generated (%d bytes, %s)", len(p.InlineData.Data), mt)
			return &CoverImage{Data: p.InlineData.Data, MIMEType: mt}, nil
		}
		if text == "" && p.Text != "" {
			text = p.Text
		}
	}
	logging.GenerationWarn("image model returned no image")
	return nil, &NoImageError{Text: text}
}

func (s *Service) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", &ImageFetchError{URL: imageURL, Err: err}
	}
	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &ImageFetchError{URL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &ImageFetchError{URL: imageURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxImageBytes+1))
	if err != nil {
		return nil, "", &ImageFetchError{URL: imageURL, Status: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > s.opts.MaxImageBytes {
		return nil, "", &ImageFetchError{URL: imageURL, Status: resp.StatusCode, Err: fmt.Errorf("image exceeds %d bytes", s.opts.MaxImageBytes)}
	}

	mimeType := defaultImageMIME
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = mt
		} else {
			mimeType = ct
		}
	}
	return data, mimeType, nil
}

// downscale shrinks oversized sources to fit MaxImageSidePx. Anything that
// fails to decode is passed through untouched.
func (s *Service) downscale(data []byte, mimeType string) ([]byte, string) {
	side := s.opts.MaxImageSidePx
	if side <= 0 {
		return data, mimeType
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		logging.GenerationDebug("source image not decodable (%v), sending as-is", err)
		return data, mimeType
	}
	b := img.Bounds()
	if b.Dx() <= side && b.Dy() <= side {
		return data, mimeType
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Fit(img, side, side, imaging.Lanczos), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		logging.GenerationWarn("downscale encode failed: %v", err)
		return data, mimeType
	}
	logging.GenerationDebug("downscaled source %dx%d to fit %d", b.Dx(), b.Dy(), side)
	return buf.Bytes(), "image/jpeg"
}

func upstream(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	logging.GenerationWarn("Gemini call failed: %v", err)
	return &UpstreamError{Message: err.Error(), Err: err}
}

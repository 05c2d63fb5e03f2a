package textproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

var (
	ErrExtractionFailed    = errors.New("text extraction failed")
	ErrUnsupportedDocument = errors.New("unsupported document")
)

const (
	mimePDF       = "application/pdf"
	mimePlainText = "text/plain"
)

type Extractor interface {
	Extract(ctx context.Context, path, contentType string) (string, error)
}

// Converter turns a rich document (docx, odt, html, rtf, ...) into plain text.
type Converter interface {
	ConvertToPlain(ctx context.Context, path string) (string, error)
}

type ExtractorConfig struct {
	MediaRoot string
	Timeout   time.Duration
}

type documentExtractor struct {
	converter Converter
	logger    zerolog.Logger
	config    ExtractorConfig
}

func NewExtractor(converter Converter, logger zerolog.Logger, config ExtractorConfig) Extractor {
	return &documentExtractor{
		converter: converter,
		logger:    logger,
		config:    config,
	}
}

func (e *documentExtractor) Extract(ctx context.Context, path, contentType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty attachment path", ErrExtractionFailed)
	}

	fullPath := e.resolve(path)
	if _, err := os.Stat(fullPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	kind := documentKind(fullPath, contentType)

	var (
		text string
		err  error
	)
	switch kind {
	case mimePDF:
		text, err = extractPDF(fullPath)
	case mimePlainText:
		text, err = readPlain(fullPath)
	default:
		if e.converter == nil {
			return "", fmt.Errorf("%w: no converter for %q", ErrUnsupportedDocument, contentType)
		}
		text, err = e.converter.ConvertToPlain(ctx, fullPath)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filepath.Base(fullPath), err)
	}

	e.logger.Debug().
		Str("path", fullPath).
		Str("content_type", contentType).
		Str("kind", kind).
		Int("text_length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Extracted document text")

	return text, nil
}

func (e *documentExtractor) resolve(path string) string {
	if filepath.IsAbs(path) || e.config.MediaRoot == "" {
		return path
	}
	return filepath.Join(e.config.MediaRoot, path)
}

// documentKind decides by content type first, then by extension.
func documentKind(path, contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ct == mimePDF || ext == ".pdf":
		return mimePDF
	case ct == mimePlainText || ext == ".txt":
		return mimePlainText
	default:
		return ct
	}
}

func extractPDF(path string) (text string, err error) {
	// The PDF parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PandocConverter shells out to pandoc, which picks the reader from the file extension.
type PandocConverter struct {
	binary string
}

func NewPandocConverter(binary string) *PandocConverter {
	if binary == "" {
		binary = "pandoc"
	}
	return &PandocConverter{binary: binary}
}

func (c *PandocConverter) ConvertToPlain(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.binary, "--to", "plain", "--wrap", "none", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("pandoc: %w", err)
		}
		return "", fmt.Errorf("pandoc: %w: %s", err, msg)
	}

	return stdout.String(), nil
}

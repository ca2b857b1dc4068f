// Package extract turns inbound media into content fragments.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/content"
)

var (
	// ErrTooLarge indicates the payload exceeds the size ceiling for its kind.
	ErrTooLarge = errors.New("media too large")
	// ErrUnsupported indicates a document type no backend or converter handles.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrEmpty indicates the attachment produced no bytes.
	ErrEmpty = errors.New("empty media")
)

// Limits are the size ceilings in bytes.
type Limits struct {
	Document int64
	Media    int64
}

// DefaultLimits are 100 MB for documents and 250 MB for other media.
var DefaultLimits = Limits{Document: 100 << 20, Media: 250 << 20}

// For returns the ceiling for kind.
func (l Limits) For(kind bus.Kind) int64 {
	if kind == bus.KindDocument {
		return l.Document
	}
	return l.Media
}

// SizeError is returned when a payload exceeds its ceiling.
type SizeError struct {
	Kind  bus.Kind
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s exceeds %d MB", e.Kind, e.Limit>>20)
}

func (e *SizeError) Unwrap() error { return ErrTooLarge }

// CheckSize validates a declared length before any bytes are read.
// A zero declared size is unknown and passes.
func (l Limits) CheckSize(kind bus.Kind, declared int64) error {
	if limit := l.For(kind); declared > limit {
		return &SizeError{Kind: kind, Limit: limit}
	}
	return nil
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// ReadMedia checks the declared size of m, then streams it under the ceiling.
func (l Limits) ReadMedia(ctx context.Context, m bus.Media) ([]byte, error) {
	if m.Attachment == nil || m.Attachment.Open == nil {
		return nil, ErrEmpty
	}
	if err := l.CheckSize(m.Kind, m.Attachment.Size); err != nil {
		return nil, err
	}
	rc, err := m.Attachment.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", m.Kind, err)
	}
	defer rc.Close()

	data, err := ReadAllWithLimit(rc, l.For(m.Kind))
	if errors.Is(err, ErrTooLarge) {
		return nil, &SizeError{Kind: m.Kind, Limit: l.For(m.Kind)}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.Kind, err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// ResultKind tags the outcome of document extraction.
type ResultKind int

const (
	// NativelySupported documents are sent as inline bytes without parsing.
	NativelySupported ResultKind = iota
	Converted
	ConversionFailed
	Unrecognized
)

func (k ResultKind) String() string {
	switch k {
	case NativelySupported:
		return "native"
	case Converted:
		return "converted"
	case ConversionFailed:
		return "failed"
	default:
		return "unrecognized"
	}
}

// DocumentResult is the tagged outcome of Extractor.Document.
type DocumentResult struct {
	Kind ResultKind
	Text string // rendering, failure marker, or type notice
}

// Fragment returns the content fragment for the result: inline bytes for
// native documents, text otherwise.
func (r DocumentResult) Fragment(data []byte, mimeType string) content.Fragment {
	if r.Kind == NativelySupported {
		return content.Inline(data, mimeType)
	}
	return content.Text(r.Text)
}

// Converter renders an office document as text.
type Converter func(data []byte) (string, error)

// QRDecoder scans an image for a structured code.
type QRDecoder interface {
	Decode(data []byte) (string, bool)
}

// Extractor applies the document and image rules.
type Extractor struct {
	Limits

	word   Converter
	sheet  Converter
	slides Converter
	qr     QRDecoder
}

type Option func(*Extractor)

func WithWordConverter(c Converter) Option   { return func(e *Extractor) { e.word = c } }
func WithSheetConverter(c Converter) Option  { return func(e *Extractor) { e.sheet = c } }
func WithSlidesConverter(c Converter) Option { return func(e *Extractor) { e.slides = c } }
func WithQRDecoder(d QRDecoder) Option       { return func(e *Extractor) { e.qr = d } }
func WithLimits(l Limits) Option             { return func(e *Extractor) { e.Limits = l } }

// New creates an Extractor with the built-in converters.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		Limits: DefaultLimits,
		word:   ConvertWord,
		sheet:  ConvertSheet,
		slides: ConvertSlides,
		qr:     ZXingDecoder{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Native reports whether the backend accepts the document type as is.
func Native(mimeType string) bool {
	switch mimeType {
	case "application/pdf", "application/json", "application/javascript":
		return true
	}
	return strings.HasPrefix(mimeType, "text/")
}

// Supported reports whether a document type is accepted at all.
func Supported(mimeType string) bool {
	for _, kw := range []string{"pdf", "text", "json", "wordprocessingml", "msword", "spreadsheetml", "presentationml"} {
		if strings.Contains(mimeType, kw) {
			return true
		}
	}
	return false
}

const (
	wordFailedMarker   = "*[FAILED TO EXTRACT DOCX/DOC]*. Try again or make sure the file is valid."
	sheetFailedMarker  = "*[FAILED TO EXTRACT XLSX/XLS]*. Try again or make sure the file is valid."
	slidesFailedMarker = "*[FAILED TO EXTRACT PPTX]*. Try again or make sure the file is valid."
)

// Document classifies and, for office formats, converts a document.
// Converter errors are logged and reported as ConversionFailed.
func (e *Extractor) Document(data []byte, mimeType string) DocumentResult {
	if Native(mimeType) {
		return DocumentResult{Kind: NativelySupported}
	}

	var (
		conv   Converter
		marker string
		format string
	)
	switch {
	case strings.Contains(mimeType, "wordprocessingml.document") || mimeType == "application/msword":
		conv, marker, format = e.word, wordFailedMarker, "word"
	case strings.Contains(mimeType, "spreadsheetml.sheet") || mimeType == "application/vnd.ms-excel":
		conv, marker, format = e.sheet, sheetFailedMarker, "sheet"
	case strings.Contains(mimeType, "presentationml.presentation"):
		conv, marker, format = e.slides, slidesFailedMarker, "slides"
	default:
		return DocumentResult{Kind: Unrecognized, Text: "*Unknown document type:* " + mimeType}
	}

	text, err := conv(data)
	if err != nil {
		slog.Warn("extract: conversion failed", "format", format, "mime", mimeType, "err", err)
		return DocumentResult{Kind: ConversionFailed, Text: marker}
	}
	return DocumentResult{Kind: Converted, Text: text}
}

// ImageResult is the outcome of Extractor.Image.
type ImageResult struct {
	Fragment content.Fragment
	QRValue  string
	HasQR    bool
}

// Image wraps the image as an inline fragment and scans it for a QR code.
func (e *Extractor) Image(data []byte, mimeType string) ImageResult {
	res := ImageResult{Fragment: content.Inline(data, mimeType)}
	if e.qr != nil {
		res.QRValue, res.HasQR = e.qr.Decode(data)
	}
	return res
}

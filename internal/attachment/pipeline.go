package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/vbonduro/roomcheck/internal/domain"
)

const (
	DefaultMaxWidth = 1024
	DefaultQuality  = 0.7
	DefaultMaxBytes = 50 * 1024 * 1024 // 50 MB

	// TransportMIME is the MIME type of every encoded attachment.
	TransportMIME = "image/jpeg"
)

var (
	ErrTooLarge    = errors.New("image too large")
	ErrUnsupported = errors.New("unsupported image format")
	ErrEmpty       = errors.New("empty image")
)

// Op names the pipeline stage that failed.
type Op string

const (
	OpRead   Op = "read"
	OpDecode Op = "decode"
	OpEncode Op = "encode"
)

// Error is returned for any ingestion failure. The owning area is never
// modified when an Error is returned.
type Error struct {
	Op   Op
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload failed: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	MaxWidth int
	// Quality is the JPEG quality factor in (0, 1].
	Quality  float64
	MaxBytes int64
}

// Pipeline turns user-selected images into attachments. It holds only
// immutable settings, so one Pipeline may serve concurrent uploads.
type Pipeline struct {
	maxWidth int
	quality  int
	maxBytes int64
}

func New(opts Options) *Pipeline {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 1 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Pipeline{
		maxWidth: opts.MaxWidth,
		quality:  int(math.Round(opts.Quality * 100)),
		maxBytes: opts.MaxBytes,
	}
}

// Ingest reads an image from r and produces an attachment for areaID. The
// transport payload is the downscaled JPEG; the preview is the original bytes
// as a data URI.
func (p *Pipeline) Ingest(ctx context.Context, areaID, name string, r io.Reader) (domain.Attachment, error) {
	if name = strings.TrimSpace(name); name == "" {
		name = "photo.jpg"
	}

	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return domain.Attachment{}, &Error{Op: OpRead, Name: name, Err: err}
	}
	if int64(len(data)) > p.maxBytes {
		return domain.Attachment{}, &Error{Op: OpRead, Name: name, Err: ErrTooLarge}
	}
	if len(data) == 0 {
		return domain.Attachment{}, &Error{Op: OpRead, Name: name, Err: ErrEmpty}
	}

	mimeType, err := sniff(data)
	if err != nil {
		return domain.Attachment{}, &Error{Op: OpDecode, Name: name, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, &Error{Op: OpDecode, Name: name, Err: err}
	}

	compressed, err := p.compress(name, data)
	if err != nil {
		return domain.Attachment{}, err
	}

	return domain.Attachment{
		AreaID:      areaID,
		Name:        name,
		MimeType:    TransportMIME,
		EncodedData: base64.StdEncoding.EncodeToString(compressed),
		PreviewData: DataURI(mimeType, data),
	}, nil
}

// formatMIME maps the registered decoder names to the MIME types we accept.
var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// sniff identifies data by the decoder whose magic bytes match and checks
// that its header parses. Anything no decoder claims is ErrUnsupported.
func sniff(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return "", ErrUnsupported
	}
	if err != nil {
		return "", err
	}
	mimeType, ok := formatMIME[format]
	if !ok {
		return "", ErrUnsupported
	}
	return mimeType, nil
}

func (p *Pipeline) compress(name string, data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Op: OpDecode, Name: name, Err: err}
	}

	dst := p.resize(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, &Error{Op: OpEncode, Name: name, Err: err}
	}
	return buf.Bytes(), nil
}

// resize flattens src onto an opaque canvas no wider than maxWidth.
func (p *Pipeline) resize(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > p.maxWidth {
		h = int(math.Round(float64(h) * float64(p.maxWidth) / float64(w)))
		if h < 1 {
			h = 1
		}
		w = p.maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// DataURI renders data as a data: URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

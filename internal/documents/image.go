package documents

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimePDF  = "application/pdf"
)

// MaxImageSize bounds a single document payload.
const MaxImageSize = 10 << 20

var (
	ErrEmptyImage       = errors.New("document is empty")
	ErrTooLarge         = errors.New("document exceeds size limit")
	ErrUnsupportedMedia = errors.New("unsupported document format")
	ErrInvalidPDF       = errors.New("pdf has no readable pages")
)

// Image is an in-memory document scan handed to the model gateway.
type Image struct {
	Name string
	MIME string
	Data []byte
}

// Size returns the payload length in bytes.
func (i Image) Size() int { return len(i.Data) }

// NewImage validates data and detects its media type. Only PNG, JPEG and PDF
// are accepted; PDFs must parse and contain at least one page.
func NewImage(name string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return Image{}, ErrTooLarge
	}
	mime := detectMIME(name, data)
	switch mime {
	case MimePNG, MimeJPEG:
	case MimePDF:
		if err := checkPDF(data); err != nil {
			return Image{}, err
		}
	default:
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime)
	}
	return Image{Name: filepath.Base(name), MIME: mime, Data: data}, nil
}

// ReadImage reads at most MaxImageSize bytes from r and validates them.
func ReadImage(name string, r io.Reader) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return Image{}, fmt.Errorf("read %s: %w", name, err)
	}
	return NewImage(name, data)
}

// Accepted reports whether a file name has one of the accepted extensions.
func Accepted(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".pdf":
		return true
	default:
		return false
	}
}

func detectMIME(name string, data []byte) string {
	sniffed := strings.ToLower(strings.TrimSpace(strings.Split(http.DetectContentType(data), ";")[0]))
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		if bytes.HasPrefix(data, []byte("%PDF")) {
			return MimePDF
		}
	}
	return sniffed
}

func checkPDF(data []byte) (err error) {
	// The pdf reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if reader.NumPage() < 1 {
		return ErrInvalidPDF
	}
	return nil
}

// Package upload assembles an untrusted upload stream into a bounded buffer.
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/example/skin-check/internal/failure"
)

// DefaultMaxBytes is the largest image accepted by default.
const DefaultMaxBytes int64 = 1_000_000

const chunkSize = 32 * 1024

// Image is a fully assembled upload. It only lives for one request.
type Image struct {
	Data        []byte
	Size        int
	ContentType string
}

// SizeLimitMessage is the validation message for an upload over maxBytes.
func SizeLimitMessage(maxBytes int64) string {
	return fmt.Sprintf("Payload content length greater than maximum allowed: %d", maxBytes)
}

// Assemble reads src to the end, refusing to hold more than maxBytes.
// contentType is the declared type; when it is empty or generic the type is
// sniffed from the bytes. All errors are *failure.Failure of kind Validation.
func Assemble(src io.Reader, maxBytes int64, contentType string) (*Image, error) {
	if src == nil {
		return nil, failure.NewValidation(failure.MessageNoImage, nil)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data := make([]byte, 0, initialCapacity(maxBytes))
	chunk := make([]byte, chunkSize)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			if int64(len(data))+int64(n) > maxBytes {
				return nil, failure.NewValidation(SizeLimitMessage(maxBytes), nil)
			}
			data = append(data, chunk[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ReadError(err)
		}
	}

	if len(data) == 0 {
		return nil, failure.NewValidation(failure.MessageNoImage, nil)
	}

	return &Image{
		Data:        data,
		Size:        len(data),
		ContentType: resolveContentType(contentType, data),
	}, nil
}

// ReadError classifies an error raised while reading an upload stream. A
// tripped transport cap reports that cap; anything else keeps its message.
func ReadError(err error) *failure.Failure {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return failure.NewValidation(SizeLimitMessage(tooLarge.Limit), err)
	}
	return failure.NewValidation(err.Error(), err)
}

func initialCapacity(maxBytes int64) int {
	if maxBytes < 64*1024 {
		return int(maxBytes)
	}
	return 64 * 1024
}

func resolveContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

package retrieval

import (
	"context"
	"errors"
)

// Space names an embedding space. Vectors of different spaces are never compared.
type Space string

const (
	SpaceText  Space = "text"
	SpaceImage Space = "image"
	SpaceAudio Space = "audio"
	SpaceVideo Space = "video"
)

// ErrUnsupportedSpace is returned by encoders that cannot embed into a space.
var ErrUnsupportedSpace = errors.New("unsupported embedding space")

// Encoder turns query text into a normalized vector of an embedding space. It
// must be a pure function of its input.
type Encoder interface {
	Encode(ctx context.Context, space Space, text string) ([]float32, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, space Space, text string) ([]float32, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, space Space, text string) ([]float32, error) {
	return f(ctx, space, text)
}

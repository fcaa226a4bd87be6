// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress frames byte payloads with an optional compression
// step so that large variable values fit under the remote service's
// per-value size limit.
//
// A frame is one tag byte, the uncompressed length as a uvarint, then
// the (possibly compressed) bytes. Decoding never trusts the length
// beyond MaxDecodedSize.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies how a frame's body is compressed. The numeric
// values are written into frames and must not change.
type Algorithm uint8

const (
	// None stores the body as-is.
	None Algorithm = 0
	// LZ4 is LZ4 block compression: fast, modest ratio.
	LZ4 Algorithm = 1
	// Zstd is zstd at the default level: better ratio for text-like
	// payloads (JSON, CBOR with repeated keys).
	Zstd Algorithm = 2
	// Auto is never written to a frame. Passed to Encode, it probes
	// the payload and picks None, LZ4, or Zstd.
	Auto Algorithm = 255
)

// MaxDecodedSize bounds the uncompressed size a frame may claim.
const MaxDecodedSize = 1 << 20

// String returns the algorithm name used in config and CLI output.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm is the inverse of Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "auto":
		return Auto, nil
	default:
		return None, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = errors.New("compress: payload is incompressible")

// Encode frames data using algorithm. When compression would not make
// the body smaller the frame falls back to None, so Encode only fails
// for an unknown algorithm or an oversized payload.
func Encode(data []byte, algorithm Algorithm) ([]byte, error) {
	if len(data) > MaxDecodedSize {
		return nil, fmt.Errorf("compress: payload of %d bytes exceeds %d", len(data), MaxDecodedSize)
	}
	if algorithm == Auto {
		algorithm = selectAlgorithm(data)
	}
	if len(data) == 0 {
		algorithm = None
	}

	var body []byte
	var err error
	switch algorithm {
	case None:
		body = data
	case LZ4:
		body, err = compressLZ4(data)
	case Zstd:
		body, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", algorithm)
	}
	if errors.Is(err, errIncompressible) {
		algorithm, body = None, data
	} else if err != nil {
		return nil, err
	}

	frame := make([]byte, 1, 1+binary.MaxVarintLen64+len(body))
	frame[0] = byte(algorithm)
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	return append(frame, body...), nil
}

// Decode reverses Encode and reports the algorithm the frame used.
func Decode(frame []byte) ([]byte, Algorithm, error) {
	if len(frame) == 0 {
		return nil, None, errors.New("compress: empty frame")
	}
	algorithm := Algorithm(frame[0])
	size, read := binary.Uvarint(frame[1:])
	if read <= 0 {
		return nil, algorithm, errors.New("compress: malformed frame length")
	}
	if size > MaxDecodedSize {
		return nil, algorithm, fmt.Errorf("compress: frame claims %d bytes, limit is %d", size, MaxDecodedSize)
	}
	body := frame[1+read:]

	var data []byte
	var err error
	switch algorithm {
	case None:
		if uint64(len(body)) != size {
			return nil, algorithm, fmt.Errorf("compress: stored body is %d bytes, frame says %d", len(body), size)
		}
		data = body
	case LZ4:
		data, err = decompressLZ4(body, int(size))
	case Zstd:
		data, err = decompressZstd(body, int(size))
	default:
		return nil, algorithm, fmt.Errorf("compress: unsupported algorithm %s", algorithm)
	}
	if err != nil {
		return nil, algorithm, err
	}
	return data, algorithm, nil
}

// selectAlgorithm probes data with zstd: a ratio of at least 1.5
// picks zstd, at least 1.1 picks the cheaper lz4, anything less is
// stored uncompressed.
func selectAlgorithm(data []byte) Algorithm {
	if len(data) < 64 {
		return None
	}
	probe := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(probe))
	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(body []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body, destination)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("compress: lz4 produced %d bytes, frame says %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(body []byte, size int) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("compress: zstd: %w", err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("compress: zstd produced %d bytes, frame says %d", len(data), size)
	}
	return data, nil
}

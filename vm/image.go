package vm

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// WordSize is the size in bytes of one image word.
const WordSize = 4

// LoadImage reads an executable image: raw little-endian words, no header.
func LoadImage(path string) ([]Word, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	words, err := DecodeImage(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return words, nil
}

func DecodeImage(file []byte) ([]Word, error) {
	if len(file) == 0 {
		return nil, ErrImageEmpty
	}
	if len(file)%WordSize != 0 {
		return nil, errors.Wrapf(ErrImageTruncated, "%d trailing bytes", len(file)%WordSize)
	}
	words := make([]Word, len(file)/WordSize)
	for i := range words {
		words[i] = Word(binary.LittleEndian.Uint32(file[i*WordSize:]))
	}
	return words, nil
}

// EncodeImage is the inverse of DecodeImage.
func EncodeImage(words []Word) []byte {
	file := make([]byte, len(words)*WordSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(file[i*WordSize:], uint32(w))
	}
	return file
}

package vm

import "github.com/pkg/errors"

var (
	ErrNoFit           = errors.New("no free block fits the request")
	ErrBadFree         = errors.New("address was not returned by the allocator")
	ErrBadFrame        = errors.New("not a frame base address")
	ErrFrameNotOwned   = errors.New("frame is already in the free pool")
	ErrFrameTaken      = errors.New("frame is owned by another page table")
	ErrOutOfRange      = errors.New("address outside of managed memory")
	ErrFetchOutOfRange = errors.New("instruction fetch outside of RAM")
	ErrPIDExhausted    = errors.New("process id space exhausted")
	ErrImageEmpty      = errors.New("executable image is empty")
	ErrImageTruncated  = errors.New("executable image is not a whole number of words")
)

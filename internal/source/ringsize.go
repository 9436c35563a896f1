package source

import "fmt"

// recomputeSize derives the TPACKET_V3 ring geometry for a memory budget.
//
// The kernel requires frameSize to be a multiple of TPACKET_ALIGNMENT,
// blockSize to be a multiple of the page size and of frameSize, and the ring
// to be blockSize * numBlocks bytes, which should stay close to the budget.
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN rounded up

	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer_size_mb must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap_len must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be positive and a multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	target := ringBufferSizeMB * 1024 * 1024

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	const maxBlockSize = 4 * 1024 * 1024
	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Fall back to whole frames per block, rounded up to pages.
		blockSize = alignUp((maxBlockSize/frameSize)*frameSize, pageSize)
	}

	numBlocks = target / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

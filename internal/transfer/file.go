package transfer

import (
	"fmt"
	"hash/crc32"
)

// Checksum is the CRC-32 (IEEE) used by the file transfer protocol.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// FileReceiver collects a file of known length and verifies its checksum.
type FileReceiver struct {
	part     Part
	checksum uint32
}

func NewFileReceiver(length int, checksum uint32) *FileReceiver {
	r := &FileReceiver{checksum: checksum}
	r.part.Reset(length)
	return r
}

// Append adds a block. Once the file is complete and verified it is returned
// with done set.
func (r *FileReceiver) Append(block []byte) (file []byte, done bool, err error) {
	if err := r.part.Append(block); err != nil {
		return nil, false, err
	}
	if !r.part.Complete() {
		return nil, false, nil
	}
	if got := Checksum(r.part.Bytes()); got != r.checksum {
		return nil, false, fmt.Errorf("%w: got=%08x want=%08x", ErrChecksumMismatch, got, r.checksum)
	}
	return r.part.Bytes(), true, nil
}

func (r *FileReceiver) Received() int { return r.part.Len() }

func (r *FileReceiver) Progress() float64 { return r.part.Progress() }

// FileSender splits a file into blocks and advances as the device
// acknowledges bytes.
type FileSender struct {
	data      []byte
	blockSize int
	acked     int
}

func NewFileSender(data []byte, blockSize int) *FileSender {
	return &FileSender{data: data, blockSize: max(blockSize, 1)}
}

func (s *FileSender) Len() int { return len(s.data) }

func (s *FileSender) Checksum() uint32 { return Checksum(s.data) }

// Next returns the block starting at the acknowledged offset.
func (s *FileSender) Next() ([]byte, bool) {
	if s.Done() {
		return nil, false
	}
	end := min(s.acked+s.blockSize, len(s.data))
	return s.data[s.acked:end], true
}

// Ack records the device's running byte count.
func (s *FileSender) Ack(transferred int) error {
	if transferred < s.acked || transferred > len(s.data) {
		return fmt.Errorf("%w: acked=%d got=%d len=%d", ErrAckOutOfRange, s.acked, transferred, len(s.data))
	}
	s.acked = transferred
	return nil
}

func (s *FileSender) Done() bool { return s.acked >= len(s.data) }

func (s *FileSender) Progress() float64 {
	if len(s.data) == 0 {
		return 1
	}
	return float64(s.acked) / float64(len(s.data))
}

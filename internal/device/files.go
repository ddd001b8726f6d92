package device

import (
	"fmt"
	"slices"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/transfer"
)

// FileType is a file kind the device accepts or serves.
type FileType uint8

const (
	FileTypeTflite FileType = iota
	FileTypeWifiServerCertificate
	FileTypeWifiClientCertificate
	FileTypeWifiClientKey
)

func (f FileType) String() string {
	switch f {
	case FileTypeTflite:
		return "tflite"
	case FileTypeWifiServerCertificate:
		return "wifiServerCertificate"
	case FileTypeWifiClientCertificate:
		return "wifiClientCertificate"
	case FileTypeWifiClientKey:
		return "wifiClientKey"
	default:
		return fmt.Sprintf("file(%d)", uint8(f))
	}
}

// FileCommand is sent with SetFileTransferCommand.
type FileCommand uint8

const (
	FileCommandStartSend FileCommand = iota
	FileCommandStartReceive
	FileCommandCancel
)

// FileStatus is the device's transfer state.
type FileStatus uint8

const (
	FileStatusIdle FileStatus = iota
	FileStatusSending
	FileStatusReceiving
)

func (s FileStatus) String() string {
	switch s {
	case FileStatusIdle:
		return "idle"
	case FileStatusSending:
		return "sending"
	case FileStatusReceiving:
		return "receiving"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// defaultFileBlock is used when the link has no negotiated limit.
const defaultFileBlock = 512

type fileState struct {
	types     []FileType
	maxLength uint32
	fileType  *FileType
	length    uint32
	checksum  uint32
	status    FileStatus

	sender      *transfer.FileSender
	receiver    *transfer.FileReceiver
	wantReceive bool
}

func (f *fileState) busy() bool {
	return f.sender != nil || f.receiver != nil || f.wantReceive
}

func (f *fileState) supports(t FileType) bool {
	return slices.Contains(f.types, t)
}

func (d *Device) handleFiles(t registry.MessageType, p []byte) error {
	switch t {
	case registry.GetFileTypes:
		types := make([]FileType, 0, len(p))
		for _, b := range p {
			types = append(types, FileType(b))
		}
		d.files.types = types
		d.changed("fileTransfer", "types", len(types))
	case registry.MaxFileLength:
		v, err := readU32(p)
		if err != nil {
			return err
		}
		d.files.maxLength = v
		d.changed("fileTransfer", "maxLength", v)
	case registry.GetFileType, registry.SetFileType:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		ft := FileType(v)
		d.files.fileType = &ft
	case registry.GetFileLength, registry.SetFileLength:
		v, err := readU32(p)
		if err != nil {
			return err
		}
		d.files.length = v
	case registry.GetFileChecksum, registry.SetFileChecksum:
		v, err := readU32(p)
		if err != nil {
			return err
		}
		d.files.checksum = v
	case registry.SetFileTransferCommand:
	case registry.FileTransferStatus:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		return d.fileStatus(FileStatus(v))
	case registry.GetFileBlock:
		return d.fileBlock(p)
	case registry.SetFileBlock:
	case registry.FileBytesTransferred:
		v, err := readU32(p)
		if err != nil {
			return err
		}
		return d.fileAck(int(v))
	default:
		return ErrUnhandledType
	}
	return nil
}

func (d *Device) fileStatus(s FileStatus) error {
	prev := d.files.status
	d.files.status = s
	d.changed("fileTransfer", "status", s.String())
	switch s {
	case FileStatusSending:
		if prev != FileStatusSending && d.files.sender != nil {
			return d.sendFileBlock()
		}
	case FileStatusReceiving:
		if d.files.receiver == nil && d.files.wantReceive {
			d.files.wantReceive = false
			d.files.receiver = transfer.NewFileReceiver(int(d.files.length), d.files.checksum)
		}
	case FileStatusIdle:
		d.files.sender, d.files.receiver = nil, nil
		d.files.wantReceive = false
	}
	return nil
}

func (d *Device) fileBlock(block []byte) error {
	r := d.files.receiver
	if r == nil {
		return ErrNoTransfer
	}
	file, done, err := r.Append(block)
	if err != nil {
		d.files.receiver = nil
		return err
	}
	d.emit.Emit(events.FileProgress{Meta: d.meta(), Direction: "receive", Progress: r.Progress()})
	if ackErr := d.send(registry.FileBytesTransferred, u32Bytes(uint32(r.Received()))); ackErr != nil {
		return ackErr
	}
	if done {
		ft := ""
		if d.files.fileType != nil {
			ft = d.files.fileType.String()
		}
		d.files.receiver = nil
		d.emit.Emit(events.FileReceived{Meta: d.meta(), FileType: ft, Data: file})
	}
	return nil
}

func (d *Device) fileAck(transferred int) error {
	s := d.files.sender
	if s == nil {
		return nil
	}
	if err := s.Ack(transferred); err != nil {
		return err
	}
	d.emit.Emit(events.FileProgress{Meta: d.meta(), Direction: "send", Progress: s.Progress()})
	if s.Done() {
		d.files.sender = nil
		return nil
	}
	return d.sendFileBlock()
}

func (d *Device) sendFileBlock() error {
	block, ok := d.files.sender.Next()
	if !ok {
		return nil
	}
	return d.send(registry.SetFileBlock, block)
}

// fileBlockSize bounds a SetFileBlock payload so the message fits the
// negotiated batch limit.
func (d *Device) fileBlockSize() (int, error) {
	size := d.MaxMessageSize()
	if size == 0 {
		return defaultFileBlock, nil
	}
	if block := size - mtuOverhead; block > 0 {
		return block, nil
	}
	return 0, fmt.Errorf("%w: max message size %d leaves no room for a file block", ErrUnsupported, size)
}

// SendFile uploads data as file type ft. Blocks are sent as the device
// acknowledges them.
func (d *Device) SendFile(ft FileType, data []byte) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !d.files.supports(ft) {
		return fmt.Errorf("%w: file type %s", ErrUnsupported, ft)
	}
	if d.files.busy() {
		return ErrTransferBusy
	}
	if d.files.maxLength > 0 && uint32(len(data)) > d.files.maxLength {
		return fmt.Errorf("%w: %d > %d", ErrFileTooLarge, len(data), d.files.maxLength)
	}
	blockSize, err := d.fileBlockSize()
	if err != nil {
		return err
	}
	sender := transfer.NewFileSender(data, blockSize)
	for _, m := range []struct {
		t registry.MessageType
		p []byte
	}{
		{registry.SetFileType, []byte{byte(ft)}},
		{registry.SetFileLength, u32Bytes(uint32(len(data)))},
		{registry.SetFileChecksum, u32Bytes(sender.Checksum())},
	} {
		if err := d.enqueue(false, m.t, m.p); err != nil {
			return err
		}
	}
	d.files.sender = sender
	return d.send(registry.SetFileTransferCommand, []byte{byte(FileCommandStartSend)})
}

// ReceiveFile asks the device to send its file of type ft. The file is
// published as a FileReceived event once verified.
func (d *Device) ReceiveFile(ft FileType) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !d.files.supports(ft) {
		return fmt.Errorf("%w: file type %s", ErrUnsupported, ft)
	}
	if d.files.busy() {
		return ErrTransferBusy
	}
	d.files.wantReceive = true
	if err := d.enqueue(false, registry.SetFileType, []byte{byte(ft)}); err != nil {
		return err
	}
	return d.send(registry.SetFileTransferCommand, []byte{byte(FileCommandStartReceive)})
}

func (d *Device) CancelFileTransfer() error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	d.files.sender, d.files.receiver = nil, nil
	d.files.wantReceive = false
	return d.send(registry.SetFileTransferCommand, []byte{byte(FileCommandCancel)})
}

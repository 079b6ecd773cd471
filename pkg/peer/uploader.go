package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/ota"
	"github.com/jwoglom/fakebulb/pkg/protocol"
)

// Upload phases reported through Progress
const (
	PhaseErasing   = "erasing"
	PhaseSending   = "sending"
	PhaseFinishing = "finishing"
	PhaseComplete  = "complete"
)

// DefaultChunkSize is the payload size used by stock phone apps
const DefaultChunkSize = 16

// Progress describes how far an upload has got
type Progress struct {
	Phase        string
	CurrentChunk int
	TotalChunks  int
	Percentage   float64
	BytesWritten int
	ElapsedTime  time.Duration
}

// ProgressCallback is called after each phase change and every chunk
type ProgressCallback func(Progress)

// UploaderConfig holds the uploader configuration
type UploaderConfig struct {
	ChunkSize        int
	ProgressCallback ProgressCallback
	// VerifyEvery reads the status after this many chunks; 0 only checks at the end
	VerifyEvery int
}

// UploaderOption is a functional option for configuring the Uploader
type UploaderOption func(*UploaderConfig)

func WithChunkSize(n int) UploaderOption {
	return func(c *UploaderConfig) {
		c.ChunkSize = n
	}
}

func WithProgressCallback(cb ProgressCallback) UploaderOption {
	return func(c *UploaderConfig) {
		c.ProgressCallback = cb
	}
}

func WithVerifyEvery(n int) UploaderOption {
	return func(c *UploaderConfig) {
		c.VerifyEvery = n
	}
}

// Uploader sends a firmware image over the OTA characteristic
type Uploader struct {
	link   Link
	config UploaderConfig
}

func NewUploader(link Link, opts ...UploaderOption) *Uploader {
	cfg := UploaderConfig{ChunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Uploader{link: link, config: cfg}
}

// Upload erases the staging area, sends image and finishes the transfer. The
// bulb reboots into the new image shortly after Upload returns nil.
func (u *Uploader) Upload(ctx context.Context, image []byte) error {
	chunkSize := u.config.ChunkSize
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if len(image) == 0 {
		return fmt.Errorf("image is empty")
	}

	total := (len(image) + chunkSize - 1) / chunkSize
	if total >= 0xFFFF {
		return fmt.Errorf("image needs %d chunks, more than an index can address", total)
	}
	sectors := (total*chunkSize + ota.SectorSize - 1) / ota.SectorSize
	if sectors > 0xFF {
		return fmt.Errorf("image needs %d sectors, at most 255 can be reserved", sectors)
	}

	start := time.Now()
	u.report(Progress{Phase: PhaseErasing, TotalChunks: total})

	if err := u.link.Write(bluetooth.CharOTA, protocol.EncodeErase(uint8(sectors), chunkSize+protocol.ChunkOverhead)); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if _, err := u.expect(PhaseErasing, ota.StateErased); err != nil {
		return err
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload := make([]byte, chunkSize)
		copy(payload, image[i*chunkSize:])

		index := uint16(i + 1)
		if err := u.link.Write(bluetooth.CharOTA, protocol.EncodeChunk(index, payload)); err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}

		if u.config.VerifyEvery > 0 && (i+1)%u.config.VerifyEvery == 0 {
			if _, err := u.expect(PhaseSending, ota.StateStarted); err != nil {
				return err
			}
		}

		written := (i + 1) * chunkSize
		if written > len(image) {
			written = len(image)
		}
		u.report(Progress{
			Phase:        PhaseSending,
			CurrentChunk: i + 1,
			TotalChunks:  total,
			Percentage:   float64(i+1) * 100 / float64(total),
			BytesWritten: written,
			ElapsedTime:  time.Since(start),
		})
	}

	status, err := u.expect(PhaseSending, ota.StateStarted)
	if err != nil {
		return err
	}
	if int(status.LastGoodIndex) != total {
		return fmt.Errorf("bulb acknowledged %d of %d chunks", status.LastGoodIndex, total)
	}

	u.report(Progress{Phase: PhaseFinishing, CurrentChunk: total, TotalChunks: total, Percentage: 100, BytesWritten: len(image), ElapsedTime: time.Since(start)})
	if err := u.link.Write(bluetooth.CharOTA, protocol.EncodeTerminal(uint16(total+1))); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	if _, err := u.expect(PhaseFinishing, ota.StateCompleted); err != nil {
		return err
	}

	u.report(Progress{Phase: PhaseComplete, CurrentChunk: total, TotalChunks: total, Percentage: 100, BytesWritten: len(image), ElapsedTime: time.Since(start)})
	return nil
}

// expect reads the OTA status and checks it reports state without an error
func (u *Uploader) expect(phase string, state ota.State) (*protocol.OTAStatus, error) {
	data, err := u.link.Read(bluetooth.CharOTA)
	if err != nil {
		return nil, fmt.Errorf("%s: read status: %w", phase, err)
	}
	status, err := protocol.ParseOTAStatus(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", phase, err)
	}
	if ota.State(status.State) != state || ota.ErrorCode(status.ErrorCode) != ota.Success {
		return nil, &StatusError{
			Phase:     phase,
			State:     ota.State(status.State),
			ErrorCode: ota.ErrorCode(status.ErrorCode),
		}
	}
	return status, nil
}

func (u *Uploader) report(p Progress) {
	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(p)
	}
}

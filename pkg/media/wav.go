package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// readBufferSize bounds the per-read allocation so arbitrarily long
// recordings never get loaded in one piece.
const readBufferSize = 32 * 1024

// WAVReader streams 16-bit PCM samples out of a WAV file.
type WAVReader struct {
	file       *os.File
	SampleRate int
	Channels   int

	dataSize  int64
	bytesRead int64
}

// OpenWAV opens a WAV file for streaming sample reads.
func OpenWAV(path string) (*WAVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &WAVReader{file: f}
	if err := r.parseHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file %s: %w", path, err)
	}
	return r, nil
}

func (r *WAVReader) parseHeader() error {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r.file, riff); err != nil {
		return err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return fmt.Errorf("missing RIFF/WAVE header")
	}

	for {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(r.file, chunk); err != nil {
			return err
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r.file, body); err != nil {
				return err
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return fmt.Errorf("unsupported audio format %d", format)
			}
			r.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			r.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return fmt.Errorf("unsupported bits per sample %d", bits)
			}
		case "data":
			r.dataSize = size
			return nil
		default:
			if _, err := r.file.Seek(size, io.SeekCurrent); err != nil {
				return err
			}
		}
	}
}

// ReadSamples reads up to len(dst) samples, returning the count read.
// io.EOF is returned once the data chunk is exhausted.
func (r *WAVReader) ReadSamples(dst []int16) (int, error) {
	remaining := r.dataSize - r.bytesRead
	if remaining <= 0 {
		return 0, io.EOF
	}
	want := int64(len(dst) * 2)
	if want > remaining {
		want = remaining
	}
	buf := make([]byte, want)
	n, err := io.ReadFull(r.file, buf)
	r.bytesRead += int64(n)
	count := n / 2
	for i := 0; i < count; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return count, err
	}
	return count, nil
}

// Close releases the underlying file.
func (r *WAVReader) Close() error {
	return r.file.Close()
}

// DecodePCM reads the whole WAV file into normalized-range float64 samples
// via bounded sequential reads. Multi-channel files are averaged to mono.
func DecodePCM(path string) ([]float64, int, error) {
	r, err := OpenWAV(path)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	channels := r.Channels
	if channels <= 0 {
		channels = 1
	}

	samples := make([]float64, 0, r.dataSize/2/int64(channels))
	buf := make([]int16, readBufferSize/2)
	for {
		n, err := r.ReadSamples(buf)
		for i := 0; i+channels <= n; i += channels {
			sum := 0.0
			for c := 0; c < channels; c++ {
				sum += float64(buf[i+c])
			}
			samples = append(samples, sum/float64(channels)/32768.0)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			break
		}
	}
	return samples, r.SampleRate, nil
}

// WriteWAV writes mono 16-bit PCM samples to a WAV file. Used for chunk
// round-trips and test fixtures.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dataSize := uint32(len(samples) * 2)
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate)*2)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)
	if _, err := f.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 0, readBufferSize)
	for _, s := range samples {
		buf = append(buf, byte(s), byte(uint16(s)>>8))
		if len(buf) >= readBufferSize {
			if _, err := f.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

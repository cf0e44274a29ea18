package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const bitsPerSample = 16

// WAVInfo holds the format metadata extracted from a RIFF/WAVE container.
type WAVInfo struct {
	DataOffset int // byte offset of the first PCM sample
	DataLen    int // byte length of the data chunk
	SampleRate int // samples per second (e.g., 16000, 24000, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAVE container with a 44-byte header. The result is suitable for
// multipart uploads and HTTP responses.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV scans the RIFF/WAVE container in wav and returns the location and
// format of its PCM payload from the "fmt " and "data" sub-chunks. Walking
// the chunks is more robust than assuming a fixed 44-byte offset because the
// fmt chunk size may vary and informational chunks may precede the data.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the data
// chunk cannot be located.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var info WAVInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				format := int(binary.LittleEndian.Uint16(fmtData[0:2]))
				if format != 1 {
					return WAVInfo{}, fmt.Errorf("audio: unsupported WAV format %d (only PCM)", format)
				}
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataLen = chunkSize
			if info.DataOffset+info.DataLen > len(wav) {
				info.DataLen = len(wav) - info.DataOffset
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV data missing data chunk")
}

// PCM extracts the data-chunk bytes described by info from wav.
func (info WAVInfo) PCM(wav []byte) []byte {
	return wav[info.DataOffset : info.DataOffset+info.DataLen]
}

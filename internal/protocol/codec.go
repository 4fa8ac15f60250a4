package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrLineTooLong   = errors.New("command line exceeds maximum length")
	ErrSizeMismatch  = errors.New("body size does not match announced size")
)

// WriteFrame sends a text reply as a uint32 length followed by the text.
func WriteFrame(w io.Writer, text string) error {
	if len(text) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(text))
	binary.BigEndian.PutUint32(buf, uint32(len(text)))
	copy(buf[4:], text)

	_, err := w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

// WriteCommand sends one newline-terminated command line.
func WriteCommand(w io.Writer, line string) error {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > MaxCommandLength {
		return ErrLineTooLong
	}
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("command line contains a line break: %q", line)
	}

	_, err := io.WriteString(w, line+"\n")
	return err
}

// ReadCommand reads one command line and parses it. A stream that ends
// before any byte of a new line arrives yields Empty with io.EOF.
func ReadCommand(r *bufio.Reader) (Command, error) {
	line, err := readLine(r)
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return Empty{}, io.EOF
		}
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return Parse(line), nil
}

func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := r.ReadLine()
		sb.Write(chunk)
		if sb.Len() > MaxCommandLength {
			return "", ErrLineTooLong
		}
		if err != nil {
			return sb.String(), err
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

func WriteSize(w io.Writer, size int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(size))
	_, err := w.Write(buf[:])
	return err
}

func ReadSize(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, unexpected(err)
	}

	size := binary.BigEndian.Uint64(buf[:])
	if size > 1<<62 {
		return 0, fmt.Errorf("%w: %d", ErrSizeMismatch, size)
	}
	return int64(size), nil
}

// SendBody writes the size prefix and then exactly size bytes from src in
// ChunkSize pieces.
func SendBody(w io.Writer, src io.Reader, size int64) (int64, error) {
	if err := WriteSize(w, size); err != nil {
		return 0, err
	}
	return CopyBody(w, src, size)
}

// ReceiveBody reads a size prefix and copies exactly that many bytes into dst.
func ReceiveBody(dst io.Writer, r io.Reader) (int64, error) {
	size, err := ReadSize(r)
	if err != nil {
		return 0, err
	}
	return CopyBody(dst, r, size)
}

// CopyBody moves exactly size bytes from src to dst in ChunkSize pieces.
func CopyBody(dst io.Writer, src io.Reader, size int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(dst, io.LimitReader(src, size), buf)
	if err != nil {
		return n, err
	}
	if n != size {
		return n, fmt.Errorf("%w: want %d, got %d", ErrSizeMismatch, size, n)
	}
	return n, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

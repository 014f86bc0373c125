// Package export writes survey output in formats consumed outside the
// simulator: Arrow IPC tables, GeoJSON layers, and compressed run archives
// that can be pushed to S3-compatible object storage.
package export

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prospectsim/prospect/internal/survey"
)

// ArchiveVersion is the current run archive format.
const ArchiveVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed archive body (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// ArchiveHeader is the plain-text first line of a run archive.
type ArchiveHeader struct {
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	Checksum      string            `json:"checksum"`
	Survey        string            `json:"survey"`
	Batches       []string          `json:"batches"`
	RecordCount   int               `json:"record_count"`
	UnitTimeCount int               `json:"unit_time_count"`
	Compressed    bool              `json:"compressed"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Archive is the decoded content of a run archive.
type Archive struct {
	Header    ArchiveHeader
	Records   []survey.Record
	UnitTimes []survey.UnitTime
}

// archiveLine is one JSONL line of the body. Exactly one field is set.
type archiveLine struct {
	Record   *survey.Record   `json:"record,omitempty"`
	UnitTime *survey.UnitTime `json:"unit_time,omitempty"`
}

// WriteArchive writes batches as a header line followed by a gzip-compressed
// JSONL body holding every record and unit time in batch order.
func WriteArchive(w io.Writer, batches []survey.Batch, metadata map[string]string) (*ArchiveHeader, error) {
	header := ArchiveHeader{
		Version:    ArchiveVersion,
		CreatedAt:  time.Now().UTC(),
		Compressed: true,
		Metadata:   metadata,
		Batches:    make([]string, 0, len(batches)),
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	enc := json.NewEncoder(gzw)
	for i := range batches {
		b := &batches[i]
		if header.Survey == "" {
			header.Survey = b.Survey
		} else if b.Survey != header.Survey {
			return nil, fmt.Errorf("archive mixes surveys %q and %q", header.Survey, b.Survey)
		}
		header.Batches = append(header.Batches, b.ID)
		for j := range b.Records {
			if err := enc.Encode(archiveLine{Record: &b.Records[j]}); err != nil {
				return nil, fmt.Errorf("encoding record: %w", err)
			}
		}
		for j := range b.UnitTimes {
			if err := enc.Encode(archiveLine{UnitTime: &b.UnitTimes[j]}); err != nil {
				return nil, fmt.Errorf("encoding unit time: %w", err)
			}
		}
		header.RecordCount += len(b.Records)
		header.UnitTimeCount += len(b.UnitTimes)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header.Checksum = checksum(compressed.Bytes())
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}
	if _, err := w.Write(append(headerBytes, '\n')); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return nil, fmt.Errorf("writing compressed body: %w", err)
	}
	return &header, nil
}

// WriteArchiveFile writes an archive to path, creating parent directories.
func WriteArchiveFile(path string, batches []survey.Batch, metadata map[string]string) (*ArchiveHeader, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	header, err := WriteArchive(f, batches, metadata)
	if cerr := f.Close(); err == nil && cerr != nil {
		return nil, fmt.Errorf("closing file: %w", cerr)
	}
	return header, err
}

// ReadArchive reads an archive, verifies its checksum and decodes the body.
func ReadArchive(r io.Reader) (*Archive, error) {
	header, body, err := readRaw(r)
	if err != nil {
		return nil, err
	}
	if actual := checksum(body); actual != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing body: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed body exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	a := &Archive{
		Header:    *header,
		Records:   make([]survey.Record, 0, header.RecordCount),
		UnitTimes: make([]survey.UnitTime, 0, header.UnitTimeCount),
	}
	dec := json.NewDecoder(bytes.NewReader(decompressed))
	for dec.More() {
		var line archiveLine
		if err := dec.Decode(&line); err != nil {
			return nil, fmt.Errorf("parsing archive line: %w", err)
		}
		switch {
		case line.Record != nil:
			a.Records = append(a.Records, *line.Record)
		case line.UnitTime != nil:
			a.UnitTimes = append(a.UnitTimes, *line.UnitTime)
		}
	}
	if len(a.Records) != header.RecordCount || len(a.UnitTimes) != header.UnitTimeCount {
		return nil, fmt.Errorf("archive counts mismatch: header %d/%d, body %d/%d",
			header.RecordCount, header.UnitTimeCount, len(a.Records), len(a.UnitTimes))
	}
	return a, nil
}

// ReadArchiveFile reads the archive at path.
func ReadArchiveFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ReadArchive(f)
}

// ReadArchiveHeader reads only the header line from the archive at path.
func ReadArchiveHeader(path string) (*ArchiveHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of the archive at path without decompressing it.
func VerifyChecksum(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header, body, err := readRaw(f)
	if err != nil {
		return err
	}
	if actual := checksum(body); actual != header.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return nil
}

func readRaw(r io.Reader) (*ArchiveHeader, []byte, error) {
	reader := bufio.NewReader(r)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed body: %w", err)
	}
	return header, body, nil
}

func readHeader(reader *bufio.Reader) (*ArchiveHeader, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header ArchiveHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != ArchiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

package qpkg

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const (
	// ControlFile is the name of the control block inside the package payload
	ControlFile = "qpkg.cfg"

	// headerScanSize bounds how much of the shell header is searched for script_len
	headerScanSize = 64 * 1024
)

// Magic bytes for payload detection
var (
	gzipMagic = []byte{0x1F, 0x8B}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

	scriptLenRe = regexp.MustCompile(`(?m)^\s*script_len=(\d+)`)
)

// ReadControl extracts the control block of a QPKG package. A package is a
// shell script header declaring script_len, followed by a tar payload that
// carries qpkg.cfg directly or inside a nested control.tar archive.
func ReadControl(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	offset, err := scriptLength(data)
	if err != nil {
		return nil, err
	}
	if offset > len(data) {
		return nil, fmt.Errorf("script_len %d exceeds package size %d", offset, len(data))
	}

	cfg, err := findControl(data[offset:], 0)
	if err != nil {
		return nil, err
	}
	return ParseControl(cfg)
}

// scriptLength reads the script_len declaration from the shell header
func scriptLength(data []byte) (int, error) {
	header := data
	if len(header) > headerScanSize {
		header = header[:headerScanSize]
	}

	matches := scriptLenRe.FindSubmatch(header)
	if matches == nil {
		return 0, fmt.Errorf("script_len not found in package header")
	}

	n, err := strconv.Atoi(string(matches[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid script_len: %w", err)
	}
	return n, nil
}

// findControl walks a possibly compressed tar stream looking for qpkg.cfg
func findControl(data []byte, depth int) ([]byte, error) {
	if depth > 2 {
		return nil, fmt.Errorf("control archive nested too deeply")
	}

	payload, err := decompress(data)
	if err != nil {
		return nil, err
	}
	defer payload.Close()

	tarReader := tar.NewReader(payload)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		name := path.Base(header.Name)
		switch {
		case name == ControlFile:
			return io.ReadAll(tarReader)
		case strings.HasPrefix(name, "control.tar"):
			nested, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, err
			}
			return findControl(nested, depth+1)
		}
	}

	return nil, fmt.Errorf("%s not found in package payload", ControlFile)
}

// decompress detects the payload compression from its magic bytes
func decompress(data []byte) (io.ReadCloser, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return gzip.NewReader(bytes.NewReader(data))
	case bytes.HasPrefix(data, xzMagic):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case bytes.HasPrefix(data, zstdMagic):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// ParseControl parses qpkg.cfg, a list of shell variable assignments
func ParseControl(data []byte) (map[string]string, error) {
	control := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		control[key] = unquote(strings.TrimSpace(parts[1]))
	}

	return control, scanner.Err()
}

// unquote strips a single level of matching shell quotes
func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

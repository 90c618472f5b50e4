package qpkg

import (
	"archive/tar"
	"bytes"
	"fmt"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const testControl = `# Name of the packaged application.
QPKG_NAME="Backup"
QPKG_DISPLAY_NAME="Backup & Restore"
QPKG_VER="1.4.2"
QPKG_VER_LONG='1.4.2.20240101'
QPKG_AUTHOR="ACME <dev@example.com>"
QTS_MINI_VERSION=4.3.3
not a variable
`

func buildTar(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}); err != nil {
			t.Fatalf("Failed to write tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("Failed to write tar entry: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	return buf.Bytes()
}

func gzipData(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to gzip: %v", err)
	}
	return buf.Bytes()
}

// buildPackage prepends a shell header whose script_len points past itself
func buildPackage(payload []byte) []byte {
	const format = "#!/bin/sh\n# QNAP package installer\nscript_len=%06d\nexit 0\n"
	header := fmt.Sprintf(format, 0)
	header = fmt.Sprintf(format, len(header))
	return append([]byte(header), payload...)
}

func TestReadControlGzipPayload(t *testing.T) {
	payload := gzipData(t, buildTar(t, map[string][]byte{
		"./qpkg.cfg": []byte(testControl),
	}))

	control, err := ReadControl(bytes.NewReader(buildPackage(payload)))
	if err != nil {
		t.Fatalf("ReadControl failed: %v", err)
	}

	expected := map[string]string{
		"QPKG_NAME":         "Backup",
		"QPKG_DISPLAY_NAME": "Backup & Restore",
		"QPKG_VER":          "1.4.2",
		"QPKG_VER_LONG":     "1.4.2.20240101",
		"QPKG_AUTHOR":       "ACME <dev@example.com>",
		"QTS_MINI_VERSION":  "4.3.3",
	}
	for key, want := range expected {
		if got := control[key]; got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if len(control) != len(expected) {
		t.Errorf("Expected %d keys, got %d: %v", len(expected), len(control), control)
	}
}

func TestReadControlNestedControlArchive(t *testing.T) {
	control := gzipData(t, buildTar(t, map[string][]byte{"qpkg.cfg": []byte(testControl)}))
	payload := buildTar(t, map[string][]byte{
		"control.tar.gz": control,
	})

	result, err := ReadControl(bytes.NewReader(buildPackage(payload)))
	if err != nil {
		t.Fatalf("ReadControl failed: %v", err)
	}
	if result["QPKG_NAME"] != "Backup" {
		t.Errorf("Expected QPKG_NAME Backup, got %q", result["QPKG_NAME"])
	}
}

func TestReadControlXzAndZstdPayloads(t *testing.T) {
	archive := buildTar(t, map[string][]byte{"qpkg.cfg": []byte(testControl)})

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatalf("Failed to create xz writer: %v", err)
	}
	xw.Write(archive)
	if err := xw.Close(); err != nil {
		t.Fatalf("Failed to close xz writer: %v", err)
	}

	var zstdBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zstdBuf)
	if err != nil {
		t.Fatalf("Failed to create zstd writer: %v", err)
	}
	zw.Write(archive)
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zstd writer: %v", err)
	}

	for name, payload := range map[string][]byte{"xz": xzBuf.Bytes(), "zstd": zstdBuf.Bytes()} {
		control, err := ReadControl(bytes.NewReader(buildPackage(payload)))
		if err != nil {
			t.Errorf("%s: ReadControl failed: %v", name, err)
			continue
		}
		if control["QPKG_VER"] != "1.4.2" {
			t.Errorf("%s: expected QPKG_VER 1.4.2, got %q", name, control["QPKG_VER"])
		}
	}
}

func TestReadControlErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no header", []byte("just some bytes")},
		{"script_len past end", []byte("#!/bin/sh\nscript_len=999999\n")},
		{"missing control", buildPackage(buildTar(t, map[string][]byte{"data.tar": []byte("x")}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadControl(bytes.NewReader(tt.data)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

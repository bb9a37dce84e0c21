package docker

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func frame(streamType byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestDemuxSplitsStdoutAndStderr(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(frame(1, "out line\n"))
	raw.Write(frame(2, "err line\n"))
	raw.Write(frame(1, "more out\n"))

	var stdout, stderr bytes.Buffer
	if err := demux(&raw, &stdout, &stderr); err != nil {
		t.Fatalf("demux: %v", err)
	}

	if stdout.String() != "out line\nmore out\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if stderr.String() != "err line\n" {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestDemuxEmptyInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := demux(&bytes.Buffer{}, &stdout, &stderr); err != nil {
		t.Fatalf("demux on empty input: %v", err)
	}
	if stdout.Len() != 0 || stderr.Len() != 0 {
		t.Fatalf("expected no output, got stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		out[f.Name] = body
	}
	return out
}

func TestArchiveReferenceSet(t *testing.T) {
	entries := []Entry{
		{Filename: "face.jpg", View: "face", URL: "https://cdn.test/face.jpg", Data: []byte("face-bytes")},
		{Filename: "front.jpg", View: "front", URL: "https://cdn.test/front.jpg", Data: []byte("front-bytes")},
	}
	files := readArchive(t, ArchiveReferenceSet(entries))

	if len(files) != 3 {
		t.Fatalf("file count = %d, want images plus manifest", len(files))
	}
	if string(files["face.jpg"]) != "face-bytes" || string(files["front.jpg"]) != "front-bytes" {
		t.Fatalf("image payloads corrupted: %v", files)
	}

	var manifest []Entry
	if err := json.Unmarshal(files["manifest.json"], &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if len(manifest) != 2 || manifest[0].View != "face" || manifest[1].URL != "https://cdn.test/front.jpg" {
		t.Fatalf("manifest = %+v", manifest)
	}
}

func TestArchiveManifestOmitsImageBytes(t *testing.T) {
	files := readArchive(t, ArchiveReferenceSet([]Entry{
		{Filename: "face.jpg", View: "face", Data: []byte("secret-bytes")},
	}))
	if bytes.Contains(files["manifest.json"], []byte("secret-bytes")) {
		t.Fatal("manifest must not embed image data")
	}
}

func TestArchiveEmptySet(t *testing.T) {
	files := readArchive(t, ArchiveReferenceSet(nil))
	if len(files) != 1 {
		t.Fatalf("file count = %d, want manifest only", len(files))
	}
	if _, ok := files["manifest.json"]; !ok {
		t.Fatal("manifest missing")
	}
}

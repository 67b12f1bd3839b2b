package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
)

// Entry is one image of an archived reference set.
type Entry struct {
	Filename string `json:"filename"`
	View     string `json:"view"`
	URL      string `json:"url"`
	Data     []byte `json:"-"`
}

// ArchiveReferenceSet packs a character's reference images plus a
// manifest.json describing them into a single zip payload.
func ArchiveReferenceSet(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	if manifest, err := json.MarshalIndent(entries, "", "  "); err == nil {
		if w, err := zw.Create("manifest.json"); err == nil {
			_, _ = w.Write(manifest)
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}

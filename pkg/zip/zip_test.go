package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "face.jpg", MIME: "image/jpeg", Data: []byte("face")},
		{Filename: "body.jpg", MIME: "image/jpeg", Data: []byte("body")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "face.jpg" || zr.File[1].Name != "body.jpg" {
		t.Fatalf("unexpected entries: %v", zr.File)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "body" {
		t.Fatalf("entry content = %q", got)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{{Filename: "a"}, {Filename: "a"}})
	if err == nil {
		t.Fatalf("expected duplicate error")
	}
}

package blobstore

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

const MaxDocumentBytes = 5 << 20

var allowedDocumentTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/jpeg": true,
	"image/png":  true,
	"text/plain": true,
}

// DetectDocumentType sniffs the bytes and rejects types documents may not have.
func DetectDocumentType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	contentType := mt.String()
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	for m := mt; m != nil; m = m.Parent() {
		base := m.String()
		if i := strings.Index(base, ";"); i >= 0 {
			base = base[:i]
		}
		if allowedDocumentTypes[base] {
			return base, nil
		}
	}
	return "", fmt.Errorf("unsupported file type: %s", contentType)
}

// Thumbnail scales an image to 200px wide and re-encodes it as JPEG.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DocumentKey(tenantId string, entityType string, entityId int, documentId int, fileName string) string {
	return path.Join(tenantId, "documents", entityType, fmt.Sprint(entityId), fmt.Sprintf("%d-%s", documentId, path.Base(fileName)))
}

func ClientImageKey(tenantId string, clientId int) string {
	return path.Join(tenantId, "clients", fmt.Sprint(clientId), "thumbnail.jpg")
}

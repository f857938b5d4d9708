package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the upload type from its content, never its filename.
func (d *Detector) Detect(data []byte) (*FileTypeInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to detect file type: empty upload")
	}
	mtype := mimetype.Detect(data)

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).Msg("detected file type")
	return info, nil
}

// classify marks the formats the image pipeline can decode
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf":
		info.IsPDF = true
		info.Supported = true
		info.Description = "PDF document"
	case "image/jpeg":
		info.Supported = true
		info.Description = "JPEG image"
	case "image/png":
		info.Supported = true
		info.Description = "PNG image"
	case "image/webp":
		info.Supported = true
		info.Description = "WebP image"
	case "image/gif":
		info.Supported = true
		info.Description = "GIF image"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

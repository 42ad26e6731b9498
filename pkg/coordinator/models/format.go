package models

// FileFormat identifies the publisher format of a stored work version.
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatEPUB FileFormat = "epub"
	FormatAZW3 FileFormat = "azw3"
	FormatMOBI FileFormat = "mobi"
	FormatHTML FileFormat = "html"
	FormatTXT  FileFormat = "txt"
)

var validFormats = map[FileFormat]bool{
	FormatPDF:  true,
	FormatEPUB: true,
	FormatAZW3: true,
	FormatMOBI: true,
	FormatHTML: true,
	FormatTXT:  true,
}

// Valid reports whether f is one of the supported formats.
func (f FileFormat) Valid() bool {
	return validFormats[f]
}

// ContentType returns the MIME type served for works of this format.
func (f FileFormat) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatEPUB:
		return "application/epub+zip"
	case FormatAZW3, FormatMOBI:
		return "application/octet-stream"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatTXT:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

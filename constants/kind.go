package constants

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the declared input kind used for provider routing and cache keys.
type Kind string

const (
	KindPDF     Kind = "PDF"
	KindImage   Kind = "IMAGE"
	KindOffice  Kind = "OFFICE"
	KindText    Kind = "TEXT"
	KindUnknown Kind = "UNKNOWN"
)

// Kinds holds the allowed kinds for routing and job records.
var Kinds = []Kind{KindPDF, KindImage, KindOffice, KindText}

// AllowedExtensions holds the accepted upload extensions.
var AllowedExtensions = map[string]Kind{
	"pdf":  KindPDF,
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"doc":  KindOffice,
	"docx": KindOffice,
	"txt":  KindText,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForFilename maps a filename to its declared kind, or KindUnknown.
func KindForFilename(name string) Kind {
	ext := NormalizeExt(filepath.Ext(name))
	if k, ok := AllowedExtensions[ext]; ok {
		return k
	}
	return KindUnknown
}

// ExtensionList returns the accepted extensions for error messages.
func ExtensionList() []string {
	out := make([]string, 0, len(AllowedExtensions))
	for ext := range AllowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

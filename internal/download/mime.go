package download

import (
	"path"
	"strings"
)

// octetStream is the fallback for unknown formats.
const octetStream = "application/octet-stream"

// extToMIME covers the formats assets actually ship in: 3D, audio, image,
// archive, and document types.
var extToMIME = map[string]string{
	// 3D
	"glb":   "model/gltf-binary",
	"gltf":  "model/gltf+json",
	"fbx":   octetStream,
	"obj":   "text/plain",
	"stl":   "model/stl",
	"blend": octetStream,
	// audio
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	// image
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	// archive
	"zip": "application/zip",
	"rar": "application/vnd.rar",
	"7z":  "application/x-7z-compressed",
	"tar": "application/x-tar",
	"gz":  "application/gzip",
	// document
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"json": "application/json",
}

// mimeToExt resolves a declared content type back to an extension when the
// filename carries none.
var mimeToExt = map[string]string{
	"model/gltf-binary":            "glb",
	"model/gltf+json":              "gltf",
	"model/stl":                    "stl",
	"audio/mpeg":                   "mp3",
	"audio/wav":                    "wav",
	"audio/x-wav":                  "wav",
	"audio/ogg":                    "ogg",
	"audio/flac":                   "flac",
	"audio/mp4":                    "m4a",
	"image/png":                    "png",
	"image/jpeg":                   "jpg",
	"image/gif":                    "gif",
	"image/webp":                   "webp",
	"image/svg+xml":                "svg",
	"application/zip":              "zip",
	"application/vnd.rar":          "rar",
	"application/x-7z-compressed":  "7z",
	"application/x-tar":            "tar",
	"application/gzip":             "gz",
	"application/pdf":              "pdf",
	"text/plain":                   "txt",
	"application/json":             "json",
}

// MIMEForExtension maps a file extension (with or without the leading dot)
// to a content type. Unknown extensions map to a generic binary type.
func MIMEForExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := extToMIME[ext]; ok {
		return ct
	}
	return octetStream
}

// ExtensionForMIME maps a declared content type to an extension. Parameters
// (e.g. "; charset=utf-8") are ignored. Unknown types map to "bin".
func ExtensionForMIME(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := mimeToExt[ct]; ok {
		return ext
	}
	return "bin"
}

// hasKnownExtension reports whether name ends in any extension at all.
func hasKnownExtension(name string) bool {
	ext := path.Ext(name)
	return ext != "" && ext != "."
}

package media

import (
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".flv": {}, ".wmv": {}, ".mpg": {}, ".mpeg": {}, ".3gp": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".aac": {}, ".flac": {}, ".ogg": {},
	".wma": {}, ".m4a": {}, ".aiff": {},
}

type Classification struct {
	IsVideo    bool
	IsAccepted bool
}

func Classify(filename string) Classification {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := videoExtensions[ext]; ok {
		return Classification{IsVideo: true, IsAccepted: true}
	}
	if _, ok := audioExtensions[ext]; ok {
		return Classification{IsAccepted: true}
	}
	return Classification{}
}

// BaseName returns the file name without its directory or extension.
func BaseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

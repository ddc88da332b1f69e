package ingest

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var (
	spaces = regexp.MustCompile(`\s+`)
	// release noise such as [1080p], (2019) or x264 at the end of a name
	noise = regexp.MustCompile(`(?i)[\[(](\d{3,4}p|\d{4}|4k|hd|uhd)[\])]|\b(x264|x265|h264|h265|hevc|web ?dl|bluray)\b`)
)

// TitleFromKey builds a readable title from a file name when the file
// carries no title tag.
func TitleFromKey(key string) string {
	base := path.Base(key)
	clean := strings.TrimSuffix(base, path.Ext(base))
	clean = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(clean)
	clean = noise.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(spaces.ReplaceAllString(clean, " "))
	if clean == "" {
		return base
	}

	r := []rune(clean)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ThumbCandidates lists the image keys that may sit next to a video.
func ThumbCandidates(key string) []string {
	stem := strings.TrimSuffix(key, path.Ext(key))
	out := make([]string, 0, len(imageExtensions))
	for _, ext := range imageExtensions {
		out = append(out, stem+ext)
	}
	return out
}

package mux

import (
	"fmt"
	"strings"
)

const (
	imageBaseURL  = "https://image.mux.com"
	streamBaseURL = "https://stream.mux.com"
)

func ThumbnailURL(playbackID string) string {
	return fmt.Sprintf("%s/%s/thumbnail.jpg", imageBaseURL, strings.TrimSpace(playbackID))
}

func PreviewURL(playbackID string) string {
	return fmt.Sprintf("%s/%s/animated.gif", imageBaseURL, strings.TrimSpace(playbackID))
}

// TranscriptURL is the plain-text rendition of a generated subtitle track.
func TranscriptURL(playbackID, trackID string) string {
	return fmt.Sprintf("%s/%s/text/%s.txt", streamBaseURL, strings.TrimSpace(playbackID), strings.TrimSpace(trackID))
}

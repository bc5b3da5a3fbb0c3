package dataset

import "strings"

// Sample is one labeled page: an image on disk plus its reference transcript.
type Sample struct {
	// ID identifies the sample within the dataset.
	ID string `json:"id" parquet:"id"`

	// ImagePath points at the page image, relative to the dataset file
	// unless absolute.
	ImagePath string `json:"image_path" parquet:"image_path"`

	// Transcript is the ground-truth text of the page.
	Transcript string `json:"transcript" parquet:"transcript"`

	// Language is the page language hint, e.g. "eng".
	Language string `json:"language" parquet:"language"`
}

// Valid reports whether the sample carries enough to evaluate.
func (s *Sample) Valid() bool {
	return s.ID != "" && s.ImagePath != "" && strings.TrimSpace(s.Transcript) != ""
}

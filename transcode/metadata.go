package transcode

import (
	"fmt"
	"io"
	"os"

	"github.com/dhowden/tag"
)

// TagMetadata holds the embedded tags carried into reports
type TagMetadata struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Year     int    `json:"year,omitempty"`
	Format   string `json:"format,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// IsEmpty reports whether no descriptive tag is set
func (t *TagMetadata) IsEmpty() bool {
	return t == nil || (t.Title == "" && t.Artist == "" && t.Album == "" && t.Genre == "" && t.Year == 0)
}

// ReadTags reads ID3, MP4, FLAC or Ogg tags from r
func ReadTags(r io.ReadSeeker) (*TagMetadata, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	return &TagMetadata{
		Title:    m.Title(),
		Artist:   m.Artist(),
		Album:    m.Album(),
		Genre:    m.Genre(),
		Year:     m.Year(),
		Format:   string(m.Format()),
		FileType: string(m.FileType()),
	}, nil
}

// ReadTagsFile opens path and reads its tags
func ReadTagsFile(path string) (*TagMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTags(f)
}

package enrich

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// genreSelector finds the genre buttons in a book page's metadata section.
const genreSelector = ".BookPageMetadataSection__genres .BookPageMetadataSection__genreButton"

// ParseGenres extracts genre labels from a book page document. An empty
// result with nil error means the page carried no genre indicator.
func ParseGenres(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var genres []string
	doc.Find(genreSelector).Each(func(_ int, s *goquery.Selection) {
		if g := strings.TrimSpace(s.Text()); g != "" {
			genres = append(genres, g)
		}
	})
	return genres, nil
}

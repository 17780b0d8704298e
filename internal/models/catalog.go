package models

// Book is a catalog record from GET /books/.
type Book struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	LatinName    string `json:"latin_name"`
	Abbreviation string `json:"abbreviation"`
	ChapterCount int    `json:"chapter_count"`
}

// Verse belongs to a (book, chapter) pair.
type Verse struct {
	VerseNumber    int    `json:"verse_number"`
	Text           string `json:"text"`
	MacronizedText string `json:"macronized_text,omitempty"`
}

// DisplayText prefers the macronized text when the catalog provides it.
func (v Verse) DisplayText() string {
	if v.MacronizedText != "" {
		return v.MacronizedText
	}
	return v.Text
}

// RelatedVerse is one hit from GET /dictionary/word/{word}/verses.
type RelatedVerse struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// Position converts the hit into a navigable position.
func (r RelatedVerse) Position() Position {
	return Position{Source: DefaultSource, Book: r.Book, Chapter: r.Chapter, Verse: r.Verse}
}

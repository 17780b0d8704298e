// Package interfaces defines service contracts for lectio
package interfaces

import (
	"context"

	"github.com/bobmcallan/lectio/internal/models"
)

// CatalogClient provides the book/chapter/verse catalog
type CatalogClient interface {
	// ListBooks returns every book in canonical order
	ListBooks(ctx context.Context) ([]models.Book, error)

	// GetBook returns a single book record by abbreviation
	GetBook(ctx context.Context, abbr string) (*models.Book, error)

	// GetVerses returns the ordered verses of a chapter
	GetVerses(ctx context.Context, book string, chapter int) ([]models.Verse, error)
}

// AnalysisClient provides the remote dictionary and interpretation service
type AnalysisClient interface {
	// AnalyzeVerse requests the full analysis of a verse, including
	// translations and interpretive layers. May fail with HTTP 429.
	AnalyzeVerse(ctx context.Context, text, reference string) (*models.AnalysisResponse, error)

	// Translate translates a verse into a single language
	Translate(ctx context.Context, text, language string) (string, error)

	// RelatedVerses lists other verses containing a word key
	RelatedVerses(ctx context.Context, key string) ([]models.RelatedVerse, error)
}

// AudioClient provides recorded verse audio
type AudioClient interface {
	// AudioExists reports whether a clip exists (HEAD). A 404 is (false, nil).
	AudioExists(ctx context.Context, pos models.Position) (bool, error)

	// GetAudio downloads the clip bytes
	GetAudio(ctx context.Context, pos models.Position) ([]byte, error)

	// UploadRecording stores a new take for the verse
	UploadRecording(ctx context.Context, pos models.Position, filename string, data []byte) error
}

// ServiceClient is the full remote surface used by the reader
type ServiceClient interface {
	CatalogClient
	AnalysisClient
	AudioClient
}

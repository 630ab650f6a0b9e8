// internal/content/store.go

// Package content stores courses and the study-material fragments matches
// battle over. Fragments arrive pre-split through the course creation API;
// this package never parses or chunks documents.
package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/clashcourse/clashcourse/internal/models"
)

// ErrCourseNotFound is returned for lookups of unknown course ids.
var ErrCourseNotFound = errors.New("course not found")

// Store is the content boundary the engine and the REST surface depend on.
type Store interface {
	CreateCourse(ctx context.Context, name string, files []string, fragments []models.Fragment) (*models.Course, error)
	CourseExists(ctx context.Context, courseID string) (bool, error)
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.CourseInfo, error)
	Fragments(ctx context.Context, courseID string) ([]models.Fragment, error)
}

// NewCourseID returns a short course identifier, 8 hex chars of a v4 UUID.
func NewCourseID() string {
	return uuid.NewString()[:8]
}

// normalizeFragments assigns missing fragment ids and doc ids so every
// citation is resolvable.
func normalizeFragments(courseID string, fragments []models.Fragment) []models.Fragment {
	out := make([]models.Fragment, len(fragments))
	for i, f := range fragments {
		if f.FragmentID == "" {
			f.FragmentID = fmt.Sprintf("%s-%d", courseID, i)
		}
		if f.DocID == "" {
			f.DocID = courseID
		}
		out[i] = f
	}
	return out
}

// SampleFragments returns all fragments when the pool fits within limit,
// otherwise a uniform random sample of limit fragments in their original
// relative order. Bounding the sample keeps generation prompts a fixed size
// however large a course grows.
func SampleFragments(fragments []models.Fragment, limit int) []models.Fragment {
	if limit <= 0 || len(fragments) <= limit {
		return fragments
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	picked := r.Perm(len(fragments))[:limit]
	// Restore original order within the sample.
	chosen := make(map[int]bool, limit)
	for _, idx := range picked {
		chosen[idx] = true
	}
	out := make([]models.Fragment, 0, limit)
	for i, f := range fragments {
		if chosen[i] {
			out = append(out, f)
		}
	}
	return out
}

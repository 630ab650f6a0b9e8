// internal/content/memory.go
package content

import (
	"context"
	"sync"
	"time"

	"github.com/clashcourse/clashcourse/internal/models"
)

// MemoryStore keeps courses in process memory. It is the default store when
// no Redis address is configured, and the fixture store in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	courses map[string]*models.Course
	order   []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses: make(map[string]*models.Course),
	}
}

func (s *MemoryStore) CreateCourse(ctx context.Context, name string, files []string, fragments []models.Fragment) (*models.Course, error) {
	id := NewCourseID()
	course := &models.Course{
		ID:        id,
		Name:      name,
		Files:     files,
		Fragments: normalizeFragments(id, fragments),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.courses[id] = course
	s.order = append(s.order, id)
	s.mu.Unlock()
	return course, nil
}

func (s *MemoryStore) CourseExists(ctx context.Context, courseID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.courses[courseID]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	s.mu.RLock()
	course, ok := s.courses[courseID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

func (s *MemoryStore) ListCourses(ctx context.Context) ([]models.CourseInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]models.CourseInfo, 0, len(s.order))
	for _, id := range s.order {
		c := s.courses[id]
		infos = append(infos, models.CourseInfo{
			ID:            c.ID,
			Name:          c.Name,
			Files:         c.Files,
			FragmentCount: len(c.Fragments),
			CreatedAt:     c.CreatedAt,
		})
	}
	return infos, nil
}

func (s *MemoryStore) Fragments(ctx context.Context, courseID string) ([]models.Fragment, error) {
	s.mu.RLock()
	course, ok := s.courses[courseID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCourseNotFound
	}
	return course.Fragments, nil
}

// internal/content/redis.go
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clashcourse/clashcourse/internal/models"
)

const courseIndexKey = "clashcourse:courses"

// RedisStore persists courses in Redis so uploaded material survives a
// service restart and can be shared across instances. Each course is one
// JSON value plus an id entry in an ordered index list.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. ttl of zero keeps courses forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func courseKey(courseID string) string {
	return "clashcourse:course:" + courseID
}

func (s *RedisStore) CreateCourse(ctx context.Context, name string, files []string, fragments []models.Fragment) (*models.Course, error) {
	id := NewCourseID()
	course := &models.Course{
		ID:        id,
		Name:      name,
		Files:     files,
		Fragments: normalizeFragments(id, fragments),
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(storedCourse{
		Course:    *course,
		Fragments: course.Fragments,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal course: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, courseKey(id), data, s.ttl)
	pipe.RPush(ctx, courseIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store course: %w", err)
	}
	return course, nil
}

// storedCourse carries fragments explicitly since Course omits them from
// its public JSON form.
type storedCourse struct {
	Course    models.Course     `json:"course"`
	Fragments []models.Fragment `json:"fragments"`
}

func (s *RedisStore) load(ctx context.Context, courseID string) (*models.Course, error) {
	data, err := s.client.Get(ctx, courseKey(courseID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", courseID, err)
	}
	var stored storedCourse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode course %s: %w", courseID, err)
	}
	course := stored.Course
	course.Fragments = stored.Fragments
	return &course, nil
}

func (s *RedisStore) CourseExists(ctx context.Context, courseID string) (bool, error) {
	n, err := s.client.Exists(ctx, courseKey(courseID)).Result()
	if err != nil {
		return false, fmt.Errorf("check course %s: %w", courseID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	return s.load(ctx, courseID)
}

func (s *RedisStore) ListCourses(ctx context.Context) ([]models.CourseInfo, error) {
	ids, err := s.client.LRange(ctx, courseIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	infos := make([]models.CourseInfo, 0, len(ids))
	for _, id := range ids {
		course, err := s.load(ctx, id)
		if errors.Is(err, ErrCourseNotFound) {
			// Expired course body; skip the dangling index entry.
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, models.CourseInfo{
			ID:            course.ID,
			Name:          course.Name,
			Files:         course.Files,
			FragmentCount: len(course.Fragments),
			CreatedAt:     course.CreatedAt,
		})
	}
	return infos, nil
}

func (s *RedisStore) Fragments(ctx context.Context, courseID string) ([]models.Fragment, error) {
	course, err := s.load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return course.Fragments, nil
}

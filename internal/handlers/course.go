// internal/handlers/course.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clashcourse/clashcourse/internal/models"
)

type createCourseRequest struct {
	Name      string            `json:"name"`
	Files     []string          `json:"files"`
	Fragments []models.Fragment `json:"fragments"`
}

type createCourseResponse struct {
	CourseID      string   `json:"course_id"`
	Files         []string `json:"files"`
	FragmentCount int      `json:"fragment_count"`
}

// CreateCourseHandler registers a course from pre-split content fragments.
// Fragment ids and char offsets are assigned in submission order.
func (s *Server) CreateCourseHandler(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "course name is required")
		return
	}
	if len(req.Fragments) == 0 {
		writeError(w, http.StatusBadRequest, "course requires at least one fragment")
		return
	}

	course, err := s.Courses.CreateCourse(r.Context(), req.Name, req.Files, req.Fragments)
	if err != nil {
		s.Logger.Warnf("create course %q: %v", req.Name, err)
		writeError(w, http.StatusInternalServerError, "failed to create course")
		return
	}

	writeJSON(w, http.StatusCreated, createCourseResponse{
		CourseID:      course.ID,
		Files:         course.Files,
		FragmentCount: len(course.Fragments),
	})
}

// ListCoursesHandler returns the listing view of every stored course.
func (s *Server) ListCoursesHandler(w http.ResponseWriter, r *http.Request) {
	courses, err := s.Courses.ListCourses(r.Context())
	if err != nil {
		s.Logger.Warnf("list courses: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	if courses == nil {
		courses = []models.CourseInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

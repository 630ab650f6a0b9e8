// internal/models/course.go
package models

import "time"

// Course is a bundle of study material fragments players battle over.
type Course struct {
	ID        string     `json:"course_id"`
	Name      string     `json:"name"`
	Files     []string   `json:"files"`
	Fragments []Fragment `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// CourseInfo is the listing view of a course (fragment bodies omitted).
type CourseInfo struct {
	ID            string    `json:"course_id"`
	Name          string    `json:"name"`
	Files         []string  `json:"files"`
	FragmentCount int       `json:"fragment_count"`
	CreatedAt     time.Time `json:"created_at"`
}

package catalog

import "errors"

var (
	// ErrUnsupportedEntity is returned when a draft world is requested for anything but a course or run.
	ErrUnsupportedEntity = errors.New("ensure draft world only accepts courses and course runs")

	// ErrURLSlugConflict is returned when another course of the partner already uses the slug.
	ErrURLSlugConflict = errors.New("url slug is already in use by another course")

	ErrNotFound = errors.New("not found")
)

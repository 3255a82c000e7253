// Package transcript merges freshly transcribed segments into transcript
// documents and persists those documents.
package transcript

import (
	"sort"
	"strings"
	"time"

	"transcription-queue/pkg/interval"
	"transcription-queue/pkg/models"
)

// NextID returns one past the highest segment id in doc, or 0 when doc has
// no segments.
func NextID(doc *models.Document) int {
	if doc == nil || len(doc.Segments) == 0 {
		return 0
	}
	next := 0
	for _, seg := range doc.Segments {
		if seg.ID+1 > next {
			next = seg.ID + 1
		}
	}
	return next
}

// Build returns a fresh document holding segments.
func Build(segments []models.Segment) models.Document {
	doc := models.Document{Segments: append([]models.Segment(nil), segments...)}
	sortSegments(doc.Segments)
	doc.Text = RebuildText(doc.Segments)
	doc.UpdatedAt = time.Now()
	return doc
}

// Merge replaces every existing segment that overlaps one of intervals with
// newSegments. Segments straddling an interval edge are dropped, never split.
// Ids are kept as they are; the result is ordered by start time. existing is
// not modified.
func Merge(existing models.Document, newSegments []models.Segment, intervals interval.Set) models.Document {
	merged := existing
	kept := make([]models.Segment, 0, len(existing.Segments)+len(newSegments))
	for _, seg := range existing.Segments {
		if overlapsAny(seg, intervals) {
			continue
		}
		kept = append(kept, seg)
	}
	kept = append(kept, newSegments...)
	sortSegments(kept)

	merged.Segments = kept
	merged.Text = RebuildText(kept)
	merged.UpdatedAt = time.Now()
	return merged
}

// RebuildText joins segment texts in order.
func RebuildText(segments []models.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func overlapsAny(seg models.Segment, intervals interval.Set) bool {
	for _, iv := range intervals {
		if seg.Start < iv.End && seg.End > iv.Start {
			return true
		}
	}
	return false
}

func sortSegments(segments []models.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

package persona

import "github.com/neyasbook/neyasbook/internal/manuscript"

// FilterSpoilers returns the facts and timeline entries of p that are
// visible from chapter current, given the project's chapter sequence.
//
// When current is not in seq nothing is filtered. Otherwise a fact is kept
// if it has no chapter or its chapter is in seq at or before current, and a
// timeline entry is kept if its chapter is in seq at or before current.
func FilterSpoilers(p *manuscript.EntityProfile, seq []string, current string) ([]manuscript.Fact, []manuscript.TimelineEntry) {
	cur := manuscript.IndexOf(seq, current)
	if cur < 0 {
		return p.CanonicalFacts, p.Timeline
	}

	visible := func(chapterID string) bool {
		i := manuscript.IndexOf(seq, chapterID)
		return i >= 0 && i <= cur
	}

	facts := make([]manuscript.Fact, 0, len(p.CanonicalFacts))
	for _, f := range p.CanonicalFacts {
		if f.ChapterID == "" || visible(f.ChapterID) {
			facts = append(facts, f)
		}
	}
	timeline := make([]manuscript.TimelineEntry, 0, len(p.Timeline))
	for _, t := range p.Timeline {
		if visible(t.ChapterID) {
			timeline = append(timeline, t)
		}
	}
	return facts, timeline
}

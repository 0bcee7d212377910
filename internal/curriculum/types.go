// Package curriculum maps subjects to their ordered chapter codes and
// hierarchy labels.
package curriculum

// Entry is one chapter of a subject. (Subject, ChapterCode) is unique;
// the same chapter code may appear under several subjects.
type Entry struct {
	Subject     string `json:"subject" yaml:"-"`
	ChapterCode string `json:"chapter_code" yaml:"code"`
	Level1      string `json:"level1" yaml:"level1"`
	Level2      string `json:"level2" yaml:"level2"`
	Level3      string `json:"level3" yaml:"level3"`
	SortOrder   int    `json:"sort_order" yaml:"sort_order"`
}

// Name returns the most specific label of the entry.
func (e Entry) Name() string {
	switch {
	case e.Level3 != "":
		return e.Level3
	case e.Level2 != "":
		return e.Level2
	default:
		return e.Level1
	}
}

// Document is the on-disk form of one subject's curriculum.
type Document struct {
	Subject  string  `yaml:"subject"`
	Chapters []Entry `yaml:"chapters"`
}

// Tree is a subject's chapters grouped by level1 then level2, in
// sort order.
type Tree struct {
	Subject string `json:"subject"`
	Units   []Unit `json:"units"`
}

// Unit groups the sections sharing a level1 label.
type Unit struct {
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

// Section groups the entries sharing a level2 label.
type Section struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

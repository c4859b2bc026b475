package ime

import "fmt"

// Candidates is the ranked conversion result for the current raw input,
// stored as index-aligned parallel slices.
type Candidates struct {
	Texts     []string
	SubTexts  []string
	Hiraganas []string
	// CorrespondingCount[i] is how many leading raw input characters
	// candidate i consumes.
	CorrespondingCount []int32
}

// Candidate is one row of a Candidates set.
type Candidate struct {
	Text               string
	SubText            string
	Hiragana           string
	CorrespondingCount int32
}

// Len returns the number of candidates.
func (c Candidates) Len() int {
	return len(c.Texts)
}

// Empty reports whether there are no candidates.
func (c Candidates) Empty() bool {
	return len(c.Texts) == 0
}

// At returns candidate i. It panics when i is out of range.
func (c Candidates) At(i int) Candidate {
	return Candidate{
		Text:               c.Texts[i],
		SubText:            c.SubTexts[i],
		Hiragana:           c.Hiraganas[i],
		CorrespondingCount: c.CorrespondingCount[i],
	}
}

// Append adds a candidate row.
func (c *Candidates) Append(cand Candidate) {
	c.Texts = append(c.Texts, cand.Text)
	c.SubTexts = append(c.SubTexts, cand.SubText)
	c.Hiraganas = append(c.Hiraganas, cand.Hiragana)
	c.CorrespondingCount = append(c.CorrespondingCount, cand.CorrespondingCount)
}

// Validate checks that the parallel slices line up.
func (c Candidates) Validate() error {
	n := len(c.Texts)
	if len(c.SubTexts) != n || len(c.Hiraganas) != n || len(c.CorrespondingCount) != n {
		return fmt.Errorf("candidate slices differ in length: texts=%d sub_texts=%d hiraganas=%d corresponding_count=%d",
			n, len(c.SubTexts), len(c.Hiraganas), len(c.CorrespondingCount))
	}
	for i, cc := range c.CorrespondingCount {
		if cc < 0 {
			return fmt.Errorf("candidate %d: negative corresponding count %d", i, cc)
		}
	}
	return nil
}

// CandidatesOf builds a Candidates set from rows.
func CandidatesOf(rows ...Candidate) Candidates {
	var c Candidates
	for _, r := range rows {
		c.Append(r)
	}
	return c
}

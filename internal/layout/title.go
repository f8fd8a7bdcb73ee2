package layout

import (
	"strconv"
	"strings"
)

// scanTitle looks ahead from a protocol marker for the title line. It
// returns the path tokens, the title row and the number of tokens the
// whole block spans. ok is false when no title line follows the marker
// closely enough, in which case only the marker forms the path.
func (v *Variant) scanTitle(c *Cursor) (path, title []Token, n int, ok bool) {
	marker, found := c.Peek()
	if !found {
		return nil, nil, 0, false
	}
	for i := 0; i < titleLookahead; i++ {
		t, found := c.PeekAt(i)
		if !found {
			break
		}
		if i > 0 && isMarker(t.Text) {
			break
		}
		if i > 0 && v.isTitleStart(t.Text) {
			j := i
			for {
				u, found := c.PeekAt(j)
				if !found || u.Page != t.Page || u.Line != t.Line {
					break
				}
				title = append(title, u)
				j++
			}
			return path, title, j, true
		}
		if i > 0 && v.isBoilerplate(t.Text) {
			continue
		}
		path = append(path, t)
	}
	return []Token{marker}, nil, 1, false
}

// parseTitle builds the header of a protocol from its title block. When
// the title line does not match the variant grammar only the path is set.
func (v *Variant) parseTitle(path, title []Token) (*Header, bool) {
	parts := make([]string, len(path))
	for i, t := range path {
		parts[i] = t.Trimmed()
	}
	h := &Header{Path: strings.Join(parts, v.PathJoin)}
	if len(title) == 0 || v.TitlePattern == nil {
		return h, false
	}

	texts := make([]string, len(title))
	for i, t := range title {
		texts[i] = t.Trimmed()
	}
	line := strings.TrimSpace(strings.Join(texts, " "))

	re := v.TitlePattern
	m := re.FindStringSubmatch(line)
	if m == nil {
		return h, false
	}
	group := func(name string) string {
		if i := re.SubexpIndex(name); i >= 0 {
			return m[i]
		}
		return ""
	}

	voxel := make([]float64, 0, 3)
	for _, name := range []string{"vx", "vy", "vz"} {
		f, err := strconv.ParseFloat(group(name), 64)
		if err != nil {
			return h, false
		}
		voxel = append(voxel, f)
	}

	h.TA = group("TA")
	h.PM = group("PM")
	h.PAT = group("PAT")
	h.VoxelSize = voxel
	if snr, err := strconv.ParseFloat(group("SNR"), 64); err == nil {
		h.RelSNR = &snr
	}
	h.SequenceFolder = group("SeqFolder")
	h.SequenceName = group("SeqName")
	return h, true
}

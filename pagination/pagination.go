package pagination

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/hupe1980/vecfuse/model"
)

// SortBy selects the primary page order.
type SortBy string

const (
	// SortScore orders by score, then asset_id, start_ms and primary_evidence_id.
	SortScore SortBy = "score"
	// SortClipCount orders by the number of moments of the same asset first,
	// then as SortScore.
	SortClipCount SortBy = "clip_count"
)

// ParseSortBy parses a sort_by value; empty means SortScore.
func ParseSortBy(s string) (SortBy, error) {
	v := SortBy(s).orDefault()
	if err := v.validate(); err != nil {
		return "", err
	}
	return v, nil
}

func (s SortBy) orDefault() SortBy {
	if s == "" {
		return SortScore
	}
	return s
}

func (s SortBy) validate() error {
	switch s.orDefault() {
	case SortScore, SortClipCount:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidSort, string(s))
}

// GroupBy selects result grouping.
type GroupBy string

const (
	GroupNone  GroupBy = ""
	GroupVideo GroupBy = "video"
)

// ParseGroupBy parses a group_by value; empty means no grouping.
func ParseGroupBy(s string) (GroupBy, error) {
	v := GroupBy(s)
	if err := v.validate(); err != nil {
		return "", err
	}
	return v, nil
}

func (g GroupBy) validate() error {
	switch g {
	case GroupNone, GroupVideo:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidGroupBy, string(g))
}

// DefaultTopMomentsPerGroup is used when Request.TopMomentsPerGroup is unset.
const DefaultTopMomentsPerGroup = 3

// Request describes one page.
type Request struct {
	PageLimit int
	PageToken string
	SortBy    SortBy
	GroupBy   GroupBy
	// QueryFingerprint and SnapshotMarker bind issued cursors to the query and
	// the snapshot that produced the moments.
	QueryFingerprint   string
	SnapshotMarker     string
	TopMomentsPerGroup int
}

// Group aggregates the moments of one asset.
type Group struct {
	AssetID    string         `json:"asset_id"`
	AssetType  string         `json:"asset_type"`
	ClipCount  int            `json:"clip_count"`
	BestScore  float64        `json:"best_score"`
	TopMoments []model.Moment `json:"top_moments"`
}

// Grouping is the grouped view of a page. Totals cover the whole result set,
// not just the page.
type Grouping struct {
	Groups       []Group `json:"groups"`
	TotalVideos  int     `json:"total_videos"`
	TotalMoments int     `json:"total_moments"`
}

// Page is one page of results.
type Page struct {
	// Moments holds the page's moments; with grouping, the top moments of each
	// group in group order.
	Moments       []model.Moment
	NextPageToken string
	Grouping      *Grouping
	// Total is the number of orderable items: moments, or groups when grouped.
	Total int
}

// Paginate returns the page of moments selected by req. The input is not
// modified and need not be sorted.
func Paginate(moments []model.Moment, req Request) (*Page, error) {
	if req.PageLimit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageLimit, req.PageLimit)
	}
	if err := req.SortBy.validate(); err != nil {
		return nil, err
	}
	if err := req.GroupBy.validate(); err != nil {
		return nil, err
	}
	sortBy := req.SortBy.orDefault()

	var after *SortKey
	if req.PageToken != "" {
		c, err := DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		if err := c.Check(req.QueryFingerprint, req.SnapshotMarker, sortBy, req.GroupBy); err != nil {
			return nil, err
		}
		after = &c.Last
	}

	clips := make(map[string]int)
	for i := range moments {
		clips[moments[i].AssetID]++
	}

	if req.GroupBy == GroupVideo {
		return paginateGroups(moments, clips, sortBy, after, req)
	}

	keys := make([]SortKey, len(moments))
	order := make([]int, len(moments))
	for i := range moments {
		m := &moments[i]
		keys[i] = SortKey{
			Score:      m.Score,
			ClipCount:  clips[m.AssetID],
			AssetID:    m.AssetID,
			StartMs:    m.StartMs,
			EvidenceID: m.PrimaryEvidenceID,
		}
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return compareKeys(sortBy, &keys[a], &keys[b]) })

	start, end := window(len(order), req.PageLimit, func(i int) *SortKey { return &keys[order[i]] }, sortBy, after)

	page := &Page{Moments: make([]model.Moment, 0, end-start), Total: len(order)}
	for _, idx := range order[start:end] {
		page.Moments = append(page.Moments, moments[idx])
	}
	if end < len(order) {
		tok, err := next(req, sortBy, keys[order[end-1]])
		if err != nil {
			return nil, err
		}
		page.NextPageToken = tok
	}
	return page, nil
}

func paginateGroups(moments []model.Moment, clips map[string]int, sortBy SortBy, after *SortKey, req Request) (*Page, error) {
	top := req.TopMomentsPerGroup
	if top <= 0 {
		top = DefaultTopMomentsPerGroup
	}

	byAsset := make(map[string][]*model.Moment, len(clips))
	for i := range moments {
		m := &moments[i]
		byAsset[m.AssetID] = append(byAsset[m.AssetID], m)
	}

	groups := make([]Group, 0, len(byAsset))
	keys := make([]SortKey, 0, len(byAsset))
	for asset, ms := range byAsset {
		slices.SortFunc(ms, model.CompareByScore)
		g := Group{
			AssetID:   asset,
			AssetType: ms[0].AssetType,
			ClipCount: len(ms),
			BestScore: ms[0].Score,
		}
		for _, m := range ms[:min(top, len(ms))] {
			g.TopMoments = append(g.TopMoments, *m)
		}
		groups = append(groups, g)
		keys = append(keys, SortKey{Score: g.BestScore, ClipCount: g.ClipCount, AssetID: asset})
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return compareKeys(sortBy, &keys[a], &keys[b]) })

	start, end := window(len(order), req.PageLimit, func(i int) *SortKey { return &keys[order[i]] }, sortBy, after)

	grouping := &Grouping{
		Groups:       make([]Group, 0, end-start),
		TotalVideos:  len(groups),
		TotalMoments: len(moments),
	}
	page := &Page{Grouping: grouping, Total: len(groups)}
	for _, idx := range order[start:end] {
		grouping.Groups = append(grouping.Groups, groups[idx])
		page.Moments = append(page.Moments, groups[idx].TopMoments...)
	}
	if end < len(order) {
		tok, err := next(req, sortBy, keys[order[end-1]])
		if err != nil {
			return nil, err
		}
		page.NextPageToken = tok
	}
	return page, nil
}

// window returns the [start,end) range of the page that follows after.
func window(n, limit int, key func(i int) *SortKey, sortBy SortBy, after *SortKey) (int, int) {
	start := 0
	if after != nil {
		lo, hi := 0, n
		for lo < hi {
			mid := int(uint(lo+hi) >> 1)
			if compareKeys(sortBy, key(mid), after) <= 0 {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		start = lo
	}
	return start, min(start+limit, n)
}

func next(req Request, sortBy SortBy, last SortKey) (string, error) {
	c := Cursor{
		Version:          CursorVersion,
		QueryFingerprint: req.QueryFingerprint,
		SnapshotMarker:   req.SnapshotMarker,
		SortBy:           sortBy,
		GroupBy:          req.GroupBy,
		Last:             last,
	}
	return c.Encode()
}

// compareKeys is the total page order. Keys of distinct moments never compare
// equal; group keys differ by AssetID.
func compareKeys(sortBy SortBy, a, b *SortKey) int {
	if sortBy == SortClipCount {
		if c := cmp.Compare(b.ClipCount, a.ClipCount); c != 0 {
			return c
		}
	}
	am := model.Moment{Score: a.Score, AssetID: a.AssetID, StartMs: a.StartMs, PrimaryEvidenceID: a.EvidenceID}
	bm := model.Moment{Score: b.Score, AssetID: b.AssetID, StartMs: b.StartMs, PrimaryEvidenceID: b.EvidenceID}
	return model.CompareByScore(&am, &bm)
}

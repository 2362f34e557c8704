package fusion

import (
	"errors"
	"slices"
	"strings"

	"github.com/hupe1980/vecfuse/distance"
	"github.com/hupe1980/vecfuse/model"
)

// Stats summarizes one fusion.
type Stats struct {
	Candidates int `json:"candidates"`
	Moments    int `json:"moments"`
	// Dropped counts moments that failed their evidence invariants.
	Dropped     int            `json:"dropped"`
	DropReasons map[string]int `json:"drop_reasons,omitempty"`
}

// contribution is the best candidate of one modality for one moment.
type contribution struct {
	cand  model.Candidate
	score float64
}

type group struct {
	key   model.MomentKey
	first model.Candidate
	best  map[model.Modality]*contribution
	// evidence in arrival order, deduplicated by (id, modality).
	evidence []model.Candidate
}

// Fuse merges candidates into moments sorted by fused score descending with a
// total tie-break order. Invalid moments are dropped and counted.
func Fuse(candidates map[model.Modality][]model.Candidate, w WeightSet) ([]model.Moment, Stats) {
	var stats Stats
	groups := make(map[model.MomentKey]*group)
	var order []*group

	for _, m := range model.AllModalities() {
		weight := w.Weight(m)
		for _, c := range candidates[m] {
			stats.Candidates++
			if c.Rank <= 0 || weight == 0 {
				continue
			}
			c.Modality = m
			key := model.KeyFor(c)
			g, ok := groups[key]
			if !ok {
				g = &group{key: key, first: c, best: make(map[model.Modality]*contribution)}
				groups[key] = g
				order = append(order, g)
			}
			g.evidence = appendEvidence(g.evidence, c)
			if prev, ok := g.best[m]; !ok || c.Rank < prev.cand.Rank {
				g.best[m] = &contribution{cand: c, score: weight / (w.K + float64(c.Rank))}
			}
		}
	}

	out := make([]model.Moment, 0, len(order))
	for _, g := range order {
		mo := g.moment()
		if err := mo.Validate(); err != nil {
			stats.Dropped++
			if stats.DropReasons == nil {
				stats.DropReasons = make(map[string]int)
			}
			stats.DropReasons[reason(err)]++
			continue
		}
		out = append(out, mo)
	}
	slices.SortStableFunc(out, func(a, b model.Moment) int { return model.CompareByScore(&a, &b) })
	stats.Moments = len(out)
	return out, stats
}

func appendEvidence(ev []model.Candidate, c model.Candidate) []model.Candidate {
	for _, e := range ev {
		if e.ID == c.ID && e.Modality == c.Modality {
			return ev
		}
	}
	return append(ev, c)
}

func (g *group) moment() model.Moment {
	mo := model.Moment{
		AssetID: g.first.AssetID,
		StartMs: g.first.StartMs,
		EndMs:   g.first.EndMs,
	}

	var primary *contribution
	var total float64
	for _, m := range model.AllModalities() {
		c, ok := g.best[m]
		if !ok {
			continue
		}
		total += c.score
		mo.Why = append(mo.Why, model.Why{
			Modality:     m,
			Rank:         c.cand.Rank,
			Similarity:   c.cand.Similarity,
			Contribution: c.score,
			EvidenceID:   c.cand.ID,
		})
		// Strictly greater keeps the canonically first modality on ties.
		if primary == nil || c.score > primary.score {
			primary = c
		}
	}
	mo.Score = distance.Clamp01(total)
	mo.Modality = primary.cand.Modality
	mo.PrimaryEvidenceID = primary.cand.ID

	for _, e := range g.evidence {
		mo.EvidenceRefs = append(mo.EvidenceRefs, model.EvidenceRef{ID: e.ID, VertexType: e.VertexType, Modality: e.Modality})
		if mo.AssetType == "" {
			mo.AssetType = e.AssetType
		}
	}
	if text := highlight(primary.cand, g.evidence); text != "" {
		mo.HighlightText = model.String(text)
	}
	return mo
}

// highlight prefers the primary candidate's text, then any other evidence text.
func highlight(primary model.Candidate, evidence []model.Candidate) string {
	if t := strings.TrimSpace(primary.Text); t != "" {
		return t
	}
	for _, e := range evidence {
		if t := strings.TrimSpace(e.Text); t != "" {
			return t
		}
	}
	return ""
}

func reason(err error) string {
	var me *model.MomentError
	if errors.As(err, &me) {
		return me.Reason
	}
	return err.Error()
}

package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/civicsignal/docket-cli/internal/model"
)

// Summary aggregates a lookup table for human review. Counts are weighted
// by comment_count so duplicated form letters carry their true weight.
type Summary struct {
	UniqueTexts   int `json:"unique_texts"`
	TotalComments int `json:"total_comments"`
	Analyzed      int `json:"analyzed"`
	Failed        int `json:"failed"`
	Unanalyzed    int `json:"unanalyzed"`

	StanceComments map[model.Stance]int `json:"stance_comments"`
	ThemeComments  map[string]int       `json:"theme_comments"`
	Clusters       []ClusterSummary     `json:"clusters,omitempty"`
}

// ClusterSummary describes one cluster's stance makeup.
type ClusterSummary struct {
	ID            string `json:"id"`
	UniqueTexts   int    `json:"unique_texts"`
	TotalComments int    `json:"total_comments"`
	// DominantStance is the stance with the most weighted comments, and
	// Purity its share of the cluster's analyzed comments.
	DominantStance model.Stance `json:"dominant_stance"`
	Purity         float64      `json:"purity"`
}

// Summarize builds a Summary from a lookup table.
func Summarize(table []*model.LookupEntry) *Summary {
	s := &Summary{
		UniqueTexts:    len(table),
		StanceComments: map[model.Stance]int{},
		ThemeComments:  map[string]int{},
	}

	type clusterAcc struct {
		unique   int
		total    int
		byStance map[model.Stance]int
	}
	clusters := map[string]*clusterAcc{}

	for _, e := range table {
		s.TotalComments += e.CommentCount

		switch {
		case !e.Analyzed():
			s.Unanalyzed++
		case e.Failed():
			s.Failed++
		default:
			s.Analyzed++
			s.StanceComments[model.Stance(*e.Stance)] += e.CommentCount
			if e.Themes != nil {
				for _, theme := range model.SplitThemes(*e.Themes) {
					s.ThemeComments[theme] += e.CommentCount
				}
			}
		}

		if e.ClusterID == nil {
			continue
		}
		acc := clusters[*e.ClusterID]
		if acc == nil {
			acc = &clusterAcc{byStance: map[model.Stance]int{}}
			clusters[*e.ClusterID] = acc
		}
		acc.unique++
		acc.total += e.CommentCount
		if e.Analyzed() && !e.Failed() {
			acc.byStance[model.Stance(*e.Stance)] += e.CommentCount
		}
	}

	for id, acc := range clusters {
		cs := ClusterSummary{ID: id, UniqueTexts: acc.unique, TotalComments: acc.total}
		analyzed, best := 0, 0
		for stance, n := range acc.byStance {
			analyzed += n
			if n > best || (n == best && stance < cs.DominantStance) {
				best = n
				cs.DominantStance = stance
			}
		}
		if analyzed > 0 {
			cs.Purity = float64(best) / float64(analyzed)
		}
		s.Clusters = append(s.Clusters, cs)
	}
	sort.Slice(s.Clusters, func(i, j int) bool {
		if s.Clusters[i].TotalComments != s.Clusters[j].TotalComments {
			return s.Clusters[i].TotalComments > s.Clusters[j].TotalComments
		}
		return s.Clusters[i].ID < s.Clusters[j].ID
	})

	return s
}

// Render formats the summary as a plain-text report.
func (s *Summary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Unique texts:   %d\n", s.UniqueTexts)
	fmt.Fprintf(&b, "Total comments: %d\n", s.TotalComments)
	fmt.Fprintf(&b, "Analyzed: %d  Failed: %d  Unanalyzed: %d\n", s.Analyzed, s.Failed, s.Unanalyzed)

	if len(s.StanceComments) > 0 {
		b.WriteString("\nStance (weighted by comment count):\n")
		for _, stance := range model.AllStances() {
			n := s.StanceComments[stance]
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-16s %d (%.1f%%)\n", stance, n, 100*float64(n)/float64(max(s.TotalComments, 1)))
		}
	}

	if len(s.ThemeComments) > 0 {
		b.WriteString("\nTop themes:\n")
		type kv struct {
			theme string
			n     int
		}
		themes := make([]kv, 0, len(s.ThemeComments))
		for theme, n := range s.ThemeComments {
			themes = append(themes, kv{theme, n})
		}
		sort.Slice(themes, func(i, j int) bool {
			if themes[i].n != themes[j].n {
				return themes[i].n > themes[j].n
			}
			return themes[i].theme < themes[j].theme
		})
		for i, t := range themes {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "  %-40s %d\n", t.theme, t.n)
		}
	}

	if len(s.Clusters) > 0 {
		b.WriteString("\nClusters:\n")
		for _, c := range s.Clusters {
			stance := string(c.DominantStance)
			if stance == "" {
				stance = "n/a"
			}
			fmt.Fprintf(&b, "  %-6s texts=%-5d comments=%-6d dominant=%-16s purity=%.2f\n",
				c.ID, c.UniqueTexts, c.TotalComments, stance, c.Purity)
		}
	}

	return b.String()
}

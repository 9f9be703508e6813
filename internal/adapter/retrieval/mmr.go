package retrieval

import (
	"sort"

	"quiz-forge/internal/util"
)

type scoredChunk struct {
	chunk *chunk
	score float64
}

func rankBySimilarity(chunks []chunk, query []float32) []scoredChunk {
	scored := make([]scoredChunk, 0, len(chunks))
	for i := range chunks {
		sim, err := util.CosineSimilarity(query, chunks[i].vec)
		if err != nil {
			continue
		}
		scored = append(scored, scoredChunk{chunk: &chunks[i], score: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored
}

// mmrSelect picks k items by maximal marginal relevance: each step takes the candidate with
// the best trade-off between query similarity and similarity to what is already selected.
// candidates must be sorted by score, best first.
func mmrSelect(candidates []scoredChunk, k int, lambda float64) []scoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if lambda <= 0 {
		lambda = 0.5
	}

	selected := make([]scoredChunk, 0, k)
	selectedVecs := make([][]float32, 0, k)
	used := make([]bool, len(candidates))

	selected = append(selected, candidates[0])
	selectedVecs = append(selectedVecs, candidates[0].chunk.vec)
	used[0] = true

	for len(selected) < k {
		bestIdx := -1
		bestVal := -1e12
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := util.MaxSimilarity(candidates[i].chunk.vec, selectedVecs)
			val := lambda*candidates[i].score - (1.0-lambda)*redundancy
			if val > bestVal {
				bestVal = val
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
		selectedVecs = append(selectedVecs, candidates[bestIdx].chunk.vec)
	}
	return selected
}

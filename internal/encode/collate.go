package encode

import "github.com/lamim/tunekit/pkg/models"

// Collate pads a batch to its longest example for causal-LM training.
// Padded positions get padID and a zero mask. Labels copy the input ids
// with IgnoreIndex wherever the mask is zero, so pad-valued content is
// also ignored under MaskPadTokenValue. Examples that already carry
// labels keep them, padded with IgnoreIndex.
func Collate(examples []models.EncodedExample, padID int, policy models.MaskPolicy) models.Batch {
	maxLen, maxLabels := 0, 0
	for _, ex := range examples {
		maxLen = max(maxLen, len(ex.InputIDs))
		maxLabels = max(maxLabels, len(ex.Labels))
	}

	batch := models.Batch{
		InputIDs:      make([][]int, len(examples)),
		AttentionMask: make([][]int, len(examples)),
		Labels:        make([][]int, len(examples)),
	}

	for row, ex := range examples {
		ids := make([]int, maxLen)
		mask := make([]int, maxLen)
		for i := range ids {
			if i >= len(ex.InputIDs) {
				ids[i] = padID
				continue
			}
			ids[i] = ex.InputIDs[i]
			if i < len(ex.AttentionMask) {
				mask[i] = ex.AttentionMask[i]
			} else {
				mask[i] = 1
			}
			if policy == models.MaskPadTokenValue && ids[i] == padID {
				mask[i] = 0
			}
		}
		batch.InputIDs[row] = ids
		batch.AttentionMask[row] = mask

		if maxLabels > 0 {
			batch.Labels[row] = padLabels(ex.Labels, maxLabels)
			continue
		}
		labels := make([]int, maxLen)
		for i := range labels {
			if mask[i] == 0 {
				labels[i] = models.IgnoreIndex
			} else {
				labels[i] = ids[i]
			}
		}
		batch.Labels[row] = labels
	}
	return batch
}

func padLabels(labels []int, size int) []int {
	out := make([]int, size)
	n := copy(out, labels)
	for i := n; i < size; i++ {
		out[i] = models.IgnoreIndex
	}
	return out
}

// Batches splits examples into consecutive groups of at most size
func Batches(examples []models.EncodedExample, size int) [][]models.EncodedExample {
	if size <= 0 || len(examples) == 0 {
		return nil
	}
	out := make([][]models.EncodedExample, 0, (len(examples)+size-1)/size)
	for start := 0; start < len(examples); start += size {
		end := min(start+size, len(examples))
		out = append(out, examples[start:end])
	}
	return out
}

package services

import (
	"strings"

	"bizharvest/models"
	"bizharvest/utils"
)

// Cleaner is the batch quality gate between normalization and storage:
// it drops listings below the confidence floor and collapses duplicates
// that share a name+location+price fingerprint.
type Cleaner struct {
	logger        *utils.Logger
	minConfidence float64
}

// NewCleaner creates a Cleaner with the given confidence floor.
func NewCleaner(logger *utils.Logger, minConfidence float64) *Cleaner {
	return &Cleaner{logger: logger, minConfidence: minConfidence}
}

// Clean filters a normalized batch and returns the records worth storing.
// Within a batch the first occurrence of a fingerprint wins, except that a
// later record with strictly higher confidence replaces it.
func (c *Cleaner) Clean(listings []*models.NormalizedListing) []*models.NormalizedListing {
	seen := make(map[string]int, len(listings))
	result := make([]*models.NormalizedListing, 0, len(listings))

	for _, l := range listings {
		if strings.TrimSpace(l.Name) == "" {
			c.logger.Warn("[cleaner] Dropping nameless listing from %s", l.Source)
			continue
		}
		if l.Confidence < c.minConfidence {
			c.logger.Debug("[cleaner] Dropping %q: confidence %.2f below floor %.2f",
				l.Name, l.Confidence, c.minConfidence)
			continue
		}

		key := l.DedupKey()
		if idx, dup := seen[key]; dup {
			if l.Confidence > result[idx].Confidence {
				c.logger.Debug("[cleaner] Replacing duplicate %q with higher-confidence copy", l.Name)
				result[idx] = l
			}
			continue
		}
		seen[key] = len(result)
		result = append(result, l)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(listings), len(result), len(listings)-len(result))
	return result
}

package metrics

// ConfirmationPoll records how a confirmation wait ended and how many
// status checks it took.
func ConfirmationPoll(state string, attempts int) {
	if !enabled {
		return
	}
	confirmationAttempts.WithLabelValues(state).Observe(float64(attempts))
}

// Submission records a verification submission outcome.
func Submission(result string) {
	if !enabled {
		return
	}
	submissionsTotal.WithLabelValues(result).Inc()
}

// Fetch records a verification list read.
func Fetch(result string) {
	if !enabled {
		return
	}
	fetchTotal.WithLabelValues(result).Inc()
}

// CacheLookup records a payload cache hit or miss.
func CacheLookup(hit bool) {
	if !enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheTotal.WithLabelValues(result).Inc()
}

// Records sets the per-category record counts of the latest snapshot.
func Records(counts map[string]int) {
	if !enabled {
		return
	}
	for category, n := range counts {
		records.WithLabelValues(category).Set(float64(n))
	}
}
